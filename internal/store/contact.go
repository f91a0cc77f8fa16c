package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ContactListExists reports whether a contact list belongs to a business
func (s *Store) ContactListExists(ctx context.Context, listID, businessID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM contact_lists WHERE id = $1 AND business_id = $2)`,
		listID, businessID)
	if err != nil {
		s.logger.Error(ctx, "failed to check contact list existence", err)
		return false, fmt.Errorf("failed to check contact list existence: %w", err)
	}
	return exists, nil
}

const sqlGetContactListMembers = `
SELECT c.id AS contact_id, c.phone_number, c.full_name, c.custom_fields
FROM contact_list_members m
JOIN contacts c ON c.id = m.contact_id
WHERE m.list_id = $1 AND ($2 = FALSE OR c.opted_out = FALSE)
ORDER BY m.created_at ASC
`

// GetContactListMembers retrieves the contacts of a list, optionally
// excluding those who opted out of broadcasts
func (s *Store) GetContactListMembers(ctx context.Context, listID uuid.UUID, excludeOptedOut bool) ([]ContactListMember, error) {
	var members []ContactListMember
	err := s.db.SelectContext(ctx, &members, sqlGetContactListMembers, listID, excludeOptedOut)
	if err != nil {
		s.logger.Error(ctx, "failed to get contact list members", err)
		return nil, fmt.Errorf("failed to get contact list members: %w", err)
	}
	return members, nil
}

const sqlGetContactsByIDs = `
SELECT c.id AS contact_id, c.phone_number, c.full_name, c.custom_fields
FROM contacts c
WHERE c.id = ANY($1)
`

// GetContactsByIDs retrieves contacts by id, keyed for message regeneration
func (s *Store) GetContactsByIDs(ctx context.Context, contactIDs []uuid.UUID) (map[uuid.UUID]ContactListMember, error) {
	if len(contactIDs) == 0 {
		return map[uuid.UUID]ContactListMember{}, nil
	}

	ids := make([]string, 0, len(contactIDs))
	for _, id := range contactIDs {
		ids = append(ids, id.String())
	}

	var contacts []ContactListMember
	err := s.db.SelectContext(ctx, &contacts, sqlGetContactsByIDs, StringArray(ids))
	if err != nil {
		s.logger.Error(ctx, "failed to get contacts by ids", err)
		return nil, fmt.Errorf("failed to get contacts by ids: %w", err)
	}

	result := make(map[uuid.UUID]ContactListMember, len(contacts))
	for _, c := range contacts {
		result[c.ContactID] = c
	}
	return result, nil
}

const sqlGetDeviceByID = `
SELECT id, business_id, name, status, created_at
FROM devices
WHERE id = $1 AND business_id = $2
`

// GetDeviceByID retrieves a device scoped to its owning business
func (s *Store) GetDeviceByID(ctx context.Context, deviceID, businessID uuid.UUID) (Device, error) {
	var device Device
	err := s.db.GetContext(ctx, &device, sqlGetDeviceByID, deviceID, businessID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Device{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get device", err)
		return Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}
