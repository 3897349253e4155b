package postgresql

// migrations returns the ordered schema migrations for the ticketflow tables.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS tickets (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				biz_id TEXT NOT NULL,
				requester TEXT NOT NULL,
				details JSONB NOT NULL DEFAULT '{}',
				status TEXT NOT NULL,
				remark TEXT NOT NULL DEFAULT '',
				blocked_until TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tickets_biz_status ON tickets (biz_id, status);
			CREATE INDEX IF NOT EXISTS idx_tickets_blocked ON tickets (blocked_until) WHERE blocked_until IS NOT NULL;

			CREATE TABLE IF NOT EXISTS flows (
				id TEXT PRIMARY KEY,
				ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				position INTEGER NOT NULL,
				status TEXT NOT NULL,
				external_ref TEXT NOT NULL DEFAULT '',
				details JSONB NOT NULL DEFAULT '{}',
				output JSONB,
				error TEXT NOT NULL DEFAULT '',
				retry_policy TEXT NOT NULL,
				max_retries INTEGER NOT NULL DEFAULT 0,
				attempts INTEGER NOT NULL DEFAULT 0,
				skippable BOOLEAN NOT NULL DEFAULT FALSE,
				resource_ids JSONB,
				due_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (ticket_id, position)
			);

			CREATE INDEX IF NOT EXISTS idx_flows_ticket_position ON flows (ticket_id, position);
			CREATE INDEX IF NOT EXISTS idx_flows_due_timers ON flows (due_at) WHERE due_at IS NOT NULL AND status = 'running';

			CREATE TABLE IF NOT EXISTS todos (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				ticket_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				status TEXT NOT NULL,
				assignees JSONB NOT NULL DEFAULT '[]',
				outcome TEXT NOT NULL DEFAULT '',
				resolved_by TEXT NOT NULL DEFAULT '',
				resolved_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_todos_flow ON todos (flow_id);
			CREATE INDEX IF NOT EXISTS idx_todos_status ON todos (status);

			CREATE TABLE IF NOT EXISTS operate_records (
				id TEXT PRIMARY KEY,
				ticket_id TEXT NOT NULL,
				flow_id TEXT NOT NULL,
				resource_id TEXT NOT NULL,
				ticket_type TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				released_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_operate_records_active_resource
				ON operate_records (resource_id) WHERE active;
			CREATE INDEX IF NOT EXISTS idx_operate_records_ticket ON operate_records (ticket_id);
		`,
	}
}
