package file

import (
	"context"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
)

// OperateRecordRepository handles exclusivity audit rows in the
// operate_records.json collection.
type OperateRecordRepository struct {
	p     *Persistence
	items map[string]*models.OperateRecord
}

func (r *OperateRecordRepository) load() error {
	return r.p.readCollection("operate_records", &r.items)
}

func (r *OperateRecordRepository) flush() error {
	return r.p.writeCollection("operate_records", r.items)
}

func (r *OperateRecordRepository) Save(_ context.Context, record *models.OperateRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	copied := *record
	r.items[record.ID] = &copied

	return r.flush()
}

// ActiveByResource returns the active record for a resource, or nil.
func (r *OperateRecordRepository) ActiveByResource(_ context.Context, resourceID string) (*models.OperateRecord, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, record := range r.items {
		if record.Active && record.ResourceID == resourceID {
			copied := *record

			return &copied, nil
		}
	}

	return nil, nil
}

func (r *OperateRecordRepository) ListByTicket(_ context.Context, ticketID string) ([]*models.OperateRecord, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	records := make([]*models.OperateRecord, 0)

	for _, record := range r.items {
		if record.TicketID == ticketID {
			copied := *record
			records = append(records, &copied)
		}
	}

	return records, nil
}

// ReleaseByFlow deactivates every record held by the given flow.
func (r *OperateRecordRepository) ReleaseByFlow(_ context.Context, ticketID, flowID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	changed := false

	for _, record := range r.items {
		if record.Active && record.TicketID == ticketID && record.FlowID == flowID {
			record.Active = false
			record.ReleasedAt = &now
			changed = true
		}
	}

	if !changed {
		return nil
	}

	return r.flush()
}
