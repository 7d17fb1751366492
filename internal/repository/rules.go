package repository

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/config"
	"github.com/ianic-gr/alarms-service/internal/models"
)

// RulesRepository 规则仓库（Cassandra rules 表，主键 tenant/mode/name）
type RulesRepository struct {
	session *gocql.Session
	logger  *zap.Logger
}

// NewCassandraSession 创建 Cassandra 会话
func NewCassandraSession(cfg *config.CassandraConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra: %w", err)
	}
	return session, nil
}

// NewRulesRepository 创建规则仓库
func NewRulesRepository(session *gocql.Session, logger *zap.Logger) *RulesRepository {
	return &RulesRepository{
		session: session,
		logger:  logger,
	}
}

const ruleColumns = `tenant, mode, name, description, entry_points, entities, drl`

// GetByTenantAndMode 按租户和模式查询规则
func (r *RulesRepository) GetByTenantAndMode(ctx context.Context, tenant, mode string) ([]models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE tenant = ? AND mode = ?`
	return r.scanRules(r.session.Query(query, tenant, mode).WithContext(ctx).Iter())
}

// GetByMode 按模式查询全部租户的规则（全表过滤，仅启动时调用）
func (r *RulesRepository) GetByMode(ctx context.Context, mode string) ([]models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE mode = ? ALLOW FILTERING`
	return r.scanRules(r.session.Query(query, mode).WithContext(ctx).Iter())
}

// Insert 写入规则
func (r *RulesRepository) Insert(ctx context.Context, rule *models.Rule) error {
	query := `INSERT INTO rules (` + ruleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if err := r.session.Query(query,
		rule.Tenant, rule.Mode, rule.Name, rule.Description,
		rule.EntryPoints, rule.Entities, rule.DRL,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	r.logger.Info("Rule inserted",
		zap.String("tenant", rule.Tenant),
		zap.String("mode", rule.Mode),
		zap.String("name", rule.Name),
	)
	return nil
}

// Update 更新规则（Cassandra 下与 Insert 等价的 upsert）
func (r *RulesRepository) Update(ctx context.Context, rule *models.Rule) error {
	query := `UPDATE rules SET description = ?, entry_points = ?, entities = ?, drl = ?
		WHERE tenant = ? AND mode = ? AND name = ?`
	if err := r.session.Query(query,
		rule.Description, rule.EntryPoints, rule.Entities, rule.DRL,
		rule.Tenant, rule.Mode, rule.Name,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// Delete 删除规则
func (r *RulesRepository) Delete(ctx context.Context, rule *models.Rule) error {
	query := `DELETE FROM rules WHERE tenant = ? AND mode = ? AND name = ?`
	if err := r.session.Query(query, rule.Tenant, rule.Mode, rule.Name).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// scanRules 扫描查询结果
func (r *RulesRepository) scanRules(iter *gocql.Iter) ([]models.Rule, error) {
	var rules []models.Rule
	var rule models.Rule
	for iter.Scan(&rule.Tenant, &rule.Mode, &rule.Name, &rule.Description,
		&rule.EntryPoints, &rule.Entities, &rule.DRL) {
		rules = append(rules, rule)
		rule = models.Rule{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to scan rules: %w", err)
	}
	return rules, nil
}
