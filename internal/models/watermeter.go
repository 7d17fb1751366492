package models

import (
	"encoding/json"
	"strings"
	"time"
)

// WaterMeter 水表参照实体（hydrometers 表）
// Code 为会话内事实句柄的唯一键；Status 入库时统一转为大写
type WaterMeter struct {
	SerialNumber       string     `json:"serial_number"`
	ClientID           string     `json:"client_id"`
	Code               string     `json:"code"`
	Udrometro          string     `json:"udrometro"`
	OldHydrometer      string     `json:"old_hydrometer"`
	KwdikosKatanalwti  string     `json:"kwdikos_katanalwti"`
	RadioAddress       string     `json:"radio_address"`
	GeoLocation        string     `json:"geo_location"`
	Latitude           *float64   `json:"latitude"`
	Longitude          *float64   `json:"longitude"`
	AppID              string     `json:"app_id"`
	SectorID           string     `json:"sector_id"`
	RemovalIndication  string     `json:"removal_indication"`
	Length             string     `json:"length"`
	Diameter           string     `json:"diameter"`
	Type               string     `json:"type"`
	Manufacturer       string     `json:"manufacturer"`
	Model              string     `json:"model"`
	EncryptionKey      string     `json:"encryption_key"`
	EncryptionProtocol string     `json:"encryption_protocol"`
	Address            string     `json:"address"`
	Contact            string     `json:"contact"`
	Status             string     `json:"status"`
	Date               *time.Time `json:"date"`
	CreatedAt          *time.Time `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"`
}

// UnmarshalJSON 反序列化时归一化 Status（与入库行为保持一致）
func (w *WaterMeter) UnmarshalJSON(data []byte) error {
	type alias WaterMeter
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*w = WaterMeter(a)
	w.NormalizeStatus()
	return nil
}

// NormalizeStatus 将状态统一为大写
func (w *WaterMeter) NormalizeStatus() {
	w.Status = strings.ToUpper(w.Status)
}

// RefKey 会话内事实句柄的领域键
func (w *WaterMeter) RefKey() string {
	return w.Code
}
