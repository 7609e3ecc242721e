package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	// Auto-migrate schema
	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	statements := []struct {
		name string
		ddl  string
	}{
		{"tenants", `
			CREATE TABLE IF NOT EXISTS tenants (
				id SERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				phone VARCHAR(32) UNIQUE NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"landlords", `
			CREATE TABLE IF NOT EXISTS landlords (
				id SERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				phone VARCHAR(32) NOT NULL,
				telegram_chat_id VARCHAR(64) DEFAULT '',
				notification_prefs JSONB DEFAULT '{"channels":[]}',
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"units", `
			CREATE TABLE IF NOT EXISTS units (
				id SERIAL PRIMARY KEY,
				landlord_id INT NOT NULL REFERENCES landlords(id),
				street_address VARCHAR(255) NOT NULL,
				unit_number VARCHAR(32) DEFAULT ''
			);
		`},
		{"leases", `
			CREATE TABLE IF NOT EXISTS leases (
				id SERIAL PRIMARY KEY,
				tenant_id INT NOT NULL REFERENCES tenants(id),
				unit_id INT NOT NULL REFERENCES units(id),
				status VARCHAR(20) DEFAULT 'active',
				monthly_rent_cents BIGINT DEFAULT 0,
				start_date DATE,
				end_date DATE
			);
		`},
		{"conversation_messages", `
			CREATE TABLE IF NOT EXISTS conversation_messages (
				id SERIAL PRIMARY KEY,
				lease_id INT NOT NULL REFERENCES leases(id),
				direction VARCHAR(10) NOT NULL,
				body TEXT NOT NULL,
				external_message_id VARCHAR(64),
				intent_classification VARCHAR(40),
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"conversation_messages dedup index", `
			CREATE UNIQUE INDEX IF NOT EXISTS ux_conversation_external_id
			ON conversation_messages (external_message_id)
			WHERE external_message_id IS NOT NULL AND external_message_id <> '';
		`},
		{"agent_actions", `
			CREATE TABLE IF NOT EXISTS agent_actions (
				id SERIAL PRIMARY KEY,
				lease_id INT NOT NULL REFERENCES leases(id),
				category VARCHAR(40) NOT NULL,
				description TEXT NOT NULL,
				tools_called JSONB DEFAULT '[]',
				confidence_score DOUBLE PRECISION DEFAULT 0,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"maintenance_requests", `
			CREATE TABLE IF NOT EXISTS maintenance_requests (
				id UUID PRIMARY KEY,
				lease_id INT NOT NULL REFERENCES leases(id),
				description TEXT NOT NULL,
				urgency VARCHAR(20) DEFAULT 'normal',
				status VARCHAR(20) DEFAULT 'open',
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"maintenance_workflows", `
			CREATE TABLE IF NOT EXISTS maintenance_workflows (
				id UUID PRIMARY KEY,
				maintenance_request_id UUID UNIQUE NOT NULL REFERENCES maintenance_requests(id),
				current_state VARCHAR(20) NOT NULL,
				vendor_eta TIMESTAMPTZ,
				vendor_notes TEXT DEFAULT '',
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"workflow_communications", `
			CREATE TABLE IF NOT EXISTS workflow_communications (
				id SERIAL PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES maintenance_workflows(id),
				sender_type VARCHAR(20) NOT NULL,
				sender_name VARCHAR(255) NOT NULL,
				message TEXT NOT NULL,
				metadata JSONB DEFAULT '{}',
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
		{"conversation_contexts", `
			CREATE TABLE IF NOT EXISTS conversation_contexts (
				lease_id INT PRIMARY KEY REFERENCES leases(id),
				summary TEXT DEFAULT '',
				open_threads JSONB DEFAULT '{}',
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
		`},
	}

	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
