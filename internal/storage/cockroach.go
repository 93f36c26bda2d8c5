package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/haasonsaas/nexus/pkg/models"
)

// nullTime converts a zero time.Time (Go's "unset" sentinel) to SQL NULL so
// optional timestamp columns like channels.context_cleared_at round-trip
// correctly instead of persisting 0001-01-01.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// NewCockroachStoresFromDSN creates Cockroach-backed stores using a DSN.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	stores := StoreSet{
		Channels:  &cockroachChannelStore{db: db},
		Agents:    &cockroachAgentStore{db: db},
		Templates: &cockroachAgentTemplateStore{db: db},
		Messages:  &cockroachChatMessageStore{db: db},
		Workflows: &cockroachWorkflowStore{db: db},
		closer:    db.Close,
	}
	return stores, nil
}

func limitOffsetClause(args []any, limit, offset int) (string, []any) {
	clause := ""
	if limit > 0 {
		args = append(args, limit)
		clause = fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		clause += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return clause, args
}

type cockroachChannelStore struct {
	db *sql.DB
}

func (s *cockroachChannelStore) Create(ctx context.Context, channel *models.Channel) error {
	if channel == nil || channel.ID == "" {
		return fmt.Errorf("channel is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, display_name, topic, archived, context_cleared_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		channel.ID, channel.DisplayName, channel.Topic, channel.Archived, nullTime(channel.ContextClearedAt), channel.CreatedAt, channel.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

func (s *cockroachChannelStore) scanRow(row *sql.Row) (*models.Channel, error) {
	var ch models.Channel
	var clearedAt sql.NullTime
	if err := row.Scan(&ch.ID, &ch.DisplayName, &ch.Topic, &ch.Archived, &clearedAt, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	if clearedAt.Valid {
		ch.ContextClearedAt = clearedAt.Time
	}
	return &ch, nil
}

func (s *cockroachChannelStore) Get(ctx context.Context, id string) (*models.Channel, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, topic, archived, context_cleared_at, created_at, updated_at FROM channels WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *cockroachChannelStore) GetByDisplayName(ctx context.Context, displayName string) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, topic, archived, context_cleared_at, created_at, updated_at FROM channels WHERE display_name = $1`, displayName)
	return s.scanRow(row)
}

func (s *cockroachChannelStore) List(ctx context.Context, includeArchived bool, limit, offset int) ([]*models.Channel, int, error) {
	whereClause := ""
	if !includeArchived {
		whereClause = " WHERE archived = false"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM channels"+whereClause).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count channels: %w", err)
	}

	clause, args := limitOffsetClause(nil, limit, offset)
	query := `SELECT id, display_name, topic, archived, context_cleared_at, created_at, updated_at FROM channels` + whereClause + ` ORDER BY created_at DESC` + clause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := []*models.Channel{}
	for rows.Next() {
		var ch models.Channel
		var clearedAt sql.NullTime
		if err := rows.Scan(&ch.ID, &ch.DisplayName, &ch.Topic, &ch.Archived, &clearedAt, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan channel: %w", err)
		}
		if clearedAt.Valid {
			ch.ContextClearedAt = clearedAt.Time
		}
		channels = append(channels, &ch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list channels: %w", err)
	}
	return channels, total, nil
}

func (s *cockroachChannelStore) Update(ctx context.Context, channel *models.Channel) error {
	if channel == nil || channel.ID == "" {
		return fmt.Errorf("channel is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET display_name = $1, topic = $2, archived = $3, context_cleared_at = $4, updated_at = $5 WHERE id = $6`,
		channel.DisplayName, channel.Topic, channel.Archived, nullTime(channel.ContextClearedAt), channel.UpdatedAt, channel.ID,
	)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update channel rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachChannelStore) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE channels SET archived = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive channel: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive channel rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type cockroachAgentStore struct {
	db *sql.DB
}

func (s *cockroachAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	persona, err := json.Marshal(agent.Persona)
	if err != nil {
		return fmt.Errorf("marshal agent persona: %w", err)
	}
	cfg, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, handle, kind, persona, config, active, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		agent.ID, agent.Handle, string(agent.Kind), persona, cfg, agent.Active, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *cockroachAgentStore) scanRow(row *sql.Row) (*models.Agent, error) {
	var agent models.Agent
	var kind string
	var persona, cfg []byte
	if err := row.Scan(&agent.ID, &agent.Handle, &kind, &persona, &cfg, &agent.Active, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	agent.Kind = models.AgentKind(kind)
	if len(persona) > 0 {
		if err := json.Unmarshal(persona, &agent.Persona); err != nil {
			return nil, fmt.Errorf("unmarshal agent persona: %w", err)
		}
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &agent.Config); err != nil {
			return nil, fmt.Errorf("unmarshal agent config: %w", err)
		}
	}
	return &agent, nil
}

func (s *cockroachAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, handle, kind, persona, config, active, created_at, updated_at FROM agents WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *cockroachAgentStore) GetByHandle(ctx context.Context, handle string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, handle, kind, persona, config, active, created_at, updated_at FROM agents WHERE handle = $1`, handle)
	return s.scanRow(row)
}

func (s *cockroachAgentStore) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Agent, int, error) {
	whereClause := ""
	if activeOnly {
		whereClause = " WHERE active = true"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM agents"+whereClause).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	clause, args := limitOffsetClause(nil, limit, offset)
	query := `SELECT id, handle, kind, persona, config, active, created_at, updated_at FROM agents` + whereClause + ` ORDER BY created_at DESC` + clause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []*models.Agent{}
	for rows.Next() {
		var agent models.Agent
		var kind string
		var persona, cfg []byte
		if err := rows.Scan(&agent.ID, &agent.Handle, &kind, &persona, &cfg, &agent.Active, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan agent: %w", err)
		}
		agent.Kind = models.AgentKind(kind)
		if len(persona) > 0 {
			if err := json.Unmarshal(persona, &agent.Persona); err != nil {
				return nil, 0, fmt.Errorf("unmarshal agent persona: %w", err)
			}
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &agent.Config); err != nil {
				return nil, 0, fmt.Errorf("unmarshal agent config: %w", err)
			}
		}
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	return agents, total, nil
}

func (s *cockroachAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	persona, err := json.Marshal(agent.Persona)
	if err != nil {
		return fmt.Errorf("marshal agent persona: %w", err)
	}
	cfg, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET handle = $1, kind = $2, persona = $3, config = $4, active = $5, updated_at = $6 WHERE id = $7`,
		agent.Handle, string(agent.Kind), persona, cfg, agent.Active, agent.UpdatedAt, agent.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachAgentStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agent rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type cockroachAgentTemplateStore struct {
	db *sql.DB
}

func (s *cockroachAgentTemplateStore) Create(ctx context.Context, tmpl *models.AgentTemplate) error {
	if tmpl == nil || tmpl.ID == "" {
		return fmt.Errorf("template is required")
	}
	persona, err := json.Marshal(tmpl.Persona)
	if err != nil {
		return fmt.Errorf("marshal template persona: %w", err)
	}
	cfg, err := json.Marshal(tmpl.Config)
	if err != nil {
		return fmt.Errorf("marshal template config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_templates (id, type, domain, handle, kind, persona, config, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tmpl.ID, string(tmpl.Type), tmpl.Domain, tmpl.Handle, string(tmpl.Kind), persona, cfg, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create agent template: %w", err)
	}
	return nil
}

func (s *cockroachAgentTemplateStore) scanRow(row *sql.Row) (*models.AgentTemplate, error) {
	var tmpl models.AgentTemplate
	var typ, kind string
	var persona, cfg []byte
	if err := row.Scan(&tmpl.ID, &typ, &tmpl.Domain, &tmpl.Handle, &kind, &persona, &cfg, &tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan agent template: %w", err)
	}
	tmpl.Type = models.TemplateType(typ)
	tmpl.Kind = models.AgentKind(kind)
	if len(persona) > 0 {
		if err := json.Unmarshal(persona, &tmpl.Persona); err != nil {
			return nil, fmt.Errorf("unmarshal template persona: %w", err)
		}
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &tmpl.Config); err != nil {
			return nil, fmt.Errorf("unmarshal template config: %w", err)
		}
	}
	return &tmpl, nil
}

func (s *cockroachAgentTemplateStore) Get(ctx context.Context, id string) (*models.AgentTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, domain, handle, kind, persona, config, created_at, updated_at FROM agent_templates WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *cockroachAgentTemplateStore) List(ctx context.Context, domain string, limit, offset int) ([]*models.AgentTemplate, int, error) {
	args := []any{}
	hasDomainFilter := domain != ""
	if hasDomainFilter {
		args = append(args, domain)
	}

	countQuery := "SELECT count(*) FROM agent_templates"
	if hasDomainFilter {
		countQuery += " WHERE domain = $1"
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agent templates: %w", err)
	}

	clause, argsList := limitOffsetClause(append([]any{}, args...), limit, offset)
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT id, type, domain, handle, kind, persona, config, created_at, updated_at FROM agent_templates`)
	if hasDomainFilter {
		queryBuilder.WriteString(" WHERE domain = $1")
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC")
	queryBuilder.WriteString(clause)

	rows, err := s.db.QueryContext(ctx, queryBuilder.String(), argsList...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agent templates: %w", err)
	}
	defer rows.Close()

	templates := []*models.AgentTemplate{}
	for rows.Next() {
		var tmpl models.AgentTemplate
		var typ, kind string
		var persona, cfg []byte
		if err := rows.Scan(&tmpl.ID, &typ, &tmpl.Domain, &tmpl.Handle, &kind, &persona, &cfg, &tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan agent template: %w", err)
		}
		tmpl.Type = models.TemplateType(typ)
		tmpl.Kind = models.AgentKind(kind)
		if len(persona) > 0 {
			if err := json.Unmarshal(persona, &tmpl.Persona); err != nil {
				return nil, 0, fmt.Errorf("unmarshal template persona: %w", err)
			}
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &tmpl.Config); err != nil {
				return nil, 0, fmt.Errorf("unmarshal template config: %w", err)
			}
		}
		templates = append(templates, &tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list agent templates: %w", err)
	}
	return templates, total, nil
}

func (s *cockroachAgentTemplateStore) Update(ctx context.Context, tmpl *models.AgentTemplate) error {
	if tmpl == nil || tmpl.ID == "" {
		return fmt.Errorf("template is required")
	}
	var typ string
	if err := s.db.QueryRowContext(ctx, `SELECT type FROM agent_templates WHERE id = $1`, tmpl.ID).Scan(&typ); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("check template type: %w", err)
	}
	if models.TemplateType(typ) == models.TemplateTypeDefault {
		return ErrImmutable
	}
	persona, err := json.Marshal(tmpl.Persona)
	if err != nil {
		return fmt.Errorf("marshal template persona: %w", err)
	}
	cfg, err := json.Marshal(tmpl.Config)
	if err != nil {
		return fmt.Errorf("marshal template config: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_templates SET domain = $1, handle = $2, kind = $3, persona = $4, config = $5, updated_at = $6 WHERE id = $7`,
		tmpl.Domain, tmpl.Handle, string(tmpl.Kind), persona, cfg, tmpl.UpdatedAt, tmpl.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent template: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent template rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachAgentTemplateStore) Delete(ctx context.Context, id string) error {
	var typ string
	if err := s.db.QueryRowContext(ctx, `SELECT type FROM agent_templates WHERE id = $1`, id).Scan(&typ); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("check template type: %w", err)
	}
	if models.TemplateType(typ) == models.TemplateTypeDefault {
		return ErrImmutable
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent template: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agent template rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type cockroachChatMessageStore struct {
	db *sql.DB
}

func (s *cockroachChatMessageStore) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, channel_id, author_id, author_kind, author_display_name, content, reply_to_id, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.ID, msg.ChannelID, msg.AuthorID, string(msg.AuthorKind), msg.AuthorDisplayName, msg.Content, msg.ReplyToID, metadata, msg.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

func (s *cockroachChatMessageStore) scanRow(row *sql.Row) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	var authorKind string
	var metadata []byte
	if err := row.Scan(&msg.ID, &msg.ChannelID, &msg.AuthorID, &authorKind, &msg.AuthorDisplayName, &msg.Content, &msg.ReplyToID, &metadata, &msg.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan chat message: %w", err)
	}
	msg.AuthorKind = models.AuthorKind(authorKind)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal message metadata: %w", err)
		}
	}
	return &msg, nil
}

func (s *cockroachChatMessageStore) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, author_id, author_kind, author_display_name, content, reply_to_id, metadata, created_at
		 FROM chat_messages WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *cockroachChatMessageStore) Replace(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_messages SET content = $1, metadata = $2 WHERE id = $3`,
		msg.Content, metadata, msg.ID,
	)
	if err != nil {
		return fmt.Errorf("replace chat message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace chat message rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachChatMessageStore) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*models.ChatMessage, error) {
	clause, args := limitOffsetClause([]any{channelID}, limit, offset)
	query := `SELECT id, channel_id, author_id, author_kind, author_display_name, content, reply_to_id, metadata, created_at
		FROM chat_messages WHERE channel_id = $1 ORDER BY created_at ASC` + clause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.ChatMessage{}
	for rows.Next() {
		var msg models.ChatMessage
		var authorKind string
		var metadata []byte
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.AuthorID, &authorKind, &msg.AuthorDisplayName, &msg.Content, &msg.ReplyToID, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.AuthorKind = models.AuthorKind(authorKind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return messages, nil
}

type cockroachWorkflowStore struct {
	db *sql.DB
}

func (s *cockroachWorkflowStore) Create(ctx context.Context, wf *models.Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow is required")
	}
	plan, err := json.Marshal(wf.Plan)
	if err != nil {
		return fmt.Errorf("marshal workflow plan: %w", err)
	}
	results, err := json.Marshal(wf.Results)
	if err != nil {
		return fmt.Errorf("marshal workflow results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, description, orchestrator_agent_id, channel_id, status, plan, results, error, created_at, started_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		wf.ID, wf.Description, wf.OrchestratorID, wf.ChannelID, string(wf.Status), plan, results, wf.Error, wf.CreatedAt, wf.StartedAt, wf.CompletedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

func (s *cockroachWorkflowStore) scanRow(row *sql.Row) (*models.Workflow, error) {
	var wf models.Workflow
	var status string
	var plan, results []byte
	if err := row.Scan(&wf.ID, &wf.Description, &wf.OrchestratorID, &wf.ChannelID, &status, &plan, &results, &wf.Error, &wf.CreatedAt, &wf.StartedAt, &wf.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	wf.Status = models.WorkflowStatus(status)
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &wf.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal workflow plan: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &wf.Results); err != nil {
			return nil, fmt.Errorf("unmarshal workflow results: %w", err)
		}
	}
	return &wf, nil
}

func (s *cockroachWorkflowStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, description, orchestrator_agent_id, channel_id, status, plan, results, error, created_at, started_at, completed_at
		 FROM workflows WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *cockroachWorkflowStore) List(ctx context.Context, channelID string, limit, offset int) ([]*models.Workflow, int, error) {
	args := []any{}
	hasChannelFilter := channelID != ""
	if hasChannelFilter {
		args = append(args, channelID)
	}

	countQuery := "SELECT count(*) FROM workflows"
	if hasChannelFilter {
		countQuery += " WHERE channel_id = $1"
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workflows: %w", err)
	}

	clause, argsList := limitOffsetClause(append([]any{}, args...), limit, offset)
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT id, description, orchestrator_agent_id, channel_id, status, plan, results, error, created_at, started_at, completed_at FROM workflows`)
	if hasChannelFilter {
		queryBuilder.WriteString(" WHERE channel_id = $1")
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC")
	queryBuilder.WriteString(clause)

	rows, err := s.db.QueryContext(ctx, queryBuilder.String(), argsList...)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		var wf models.Workflow
		var status string
		var plan, results []byte
		if err := rows.Scan(&wf.ID, &wf.Description, &wf.OrchestratorID, &wf.ChannelID, &status, &plan, &results, &wf.Error, &wf.CreatedAt, &wf.StartedAt, &wf.CompletedAt); err != nil {
			return nil, 0, fmt.Errorf("scan workflow: %w", err)
		}
		wf.Status = models.WorkflowStatus(status)
		if len(plan) > 0 {
			if err := json.Unmarshal(plan, &wf.Plan); err != nil {
				return nil, 0, fmt.Errorf("unmarshal workflow plan: %w", err)
			}
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &wf.Results); err != nil {
				return nil, 0, fmt.Errorf("unmarshal workflow results: %w", err)
			}
		}
		workflows = append(workflows, &wf)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, total, nil
}

func (s *cockroachWorkflowStore) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, errMsg string) error {
	var current string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = $1`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("check workflow status: %w", err)
	}
	from := models.WorkflowStatus(current)
	if (&models.Workflow{Status: from}).Terminal() {
		return ErrImmutable
	}
	if !models.CanTransitionWorkflow(from, status) {
		return fmt.Errorf("invalid workflow transition %s -> %s", from, status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET status = $1, error = $2 WHERE id = $3`, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow status rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachWorkflowStore) CreateTasks(ctx context.Context, tasks []*models.WorkflowTask) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tasks: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_tasks (id, workflow_id, description, agent_id, order_index, parent_ids, status, output, error, created_at, started_at, completed_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			t.ID, t.WorkflowID, t.Description, t.AgentID, t.OrderIndex, pq.Array(t.ParentIDs), string(t.Status), t.Output, t.Error, t.CreatedAt, t.StartedAt, t.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("create workflow task: %w", err)
		}
	}
	return tx.Commit()
}

func (s *cockroachWorkflowStore) GetTasks(ctx context.Context, workflowID string) ([]*models.WorkflowTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, description, agent_id, order_index, parent_ids, status, output, error, created_at, started_at, completed_at
		 FROM workflow_tasks WHERE workflow_id = $1 ORDER BY order_index ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.WorkflowTask{}
	for rows.Next() {
		var t models.WorkflowTask
		var status string
		var parentIDs []string
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.Description, &t.AgentID, &t.OrderIndex, pq.Array(&parentIDs), &status, &t.Output, &t.Error, &t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan workflow task: %w", err)
		}
		t.Status = models.WorkflowTaskStatus(status)
		t.ParentIDs = parentIDs
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflow tasks: %w", err)
	}
	return tasks, nil
}

func (s *cockroachWorkflowStore) UpdateTask(ctx context.Context, task *models.WorkflowTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_tasks SET status = $1, output = $2, error = $3, started_at = $4, completed_at = $5 WHERE id = $6`,
		string(task.Status), task.Output, task.Error, task.StartedAt, task.CompletedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow task rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
