package notifications

import "context"

func (s *Store) CreateNotification(ctx context.Context, tenantID, userID string, msg Message) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (tenant_id, user_id, type, category, title, body, action_url, is_important)
    VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8)
  `, tenantID, userID, msg.Kind, msg.Category, msg.Title, msg.Body, msg.ActionURL, msg.IsImportant)
	return err
}

func (s *Store) UserEmail(ctx context.Context, tenantID, userID string) (string, error) {
	var email string
	if err := s.DB.QueryRow(ctx, "SELECT email FROM users WHERE tenant_id = $1 AND id = $2", tenantID, userID).Scan(&email); err != nil {
		return "", err
	}
	return email, nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool, limit, offset int) ([]map[string]any, error) {
	query := `
    SELECT id, type, category, title, body, COALESCE(action_url,''), is_important, read_at, created_at
    FROM notifications
    WHERE tenant_id = $1 AND user_id = $2
  `
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC LIMIT $3 OFFSET $4"

	rows, err := s.DB.Query(ctx, query, tenantID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, ntype, category, title, body, actionURL string
		var isImportant bool
		var readAt, createdAt any
		if err := rows.Scan(&id, &ntype, &category, &title, &body, &actionURL, &isImportant, &readAt, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":          id,
			"type":        ntype,
			"category":    category,
			"title":       title,
			"body":        body,
			"actionUrl":   actionURL,
			"isImportant": isImportant,
			"readAt":      readAt,
			"createdAt":   createdAt,
		})
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, tenantID, userID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM notifications
    WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL
  `, tenantID, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, tenantID, userID, notificationID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE tenant_id = $1 AND user_id = $2 AND id = $3 AND read_at IS NULL
  `, tenantID, userID, notificationID)
	return err
}

func (s *Store) MarkAllRead(ctx context.Context, tenantID, userID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL
  `, tenantID, userID)
	return err
}

func (s *Store) EmailSettings(ctx context.Context, tenantID string) (bool, string, error) {
	var enabled bool
	var from string
	err := s.DB.QueryRow(ctx, `
    SELECT email_enabled, COALESCE(email_from,'')
    FROM notification_settings
    WHERE tenant_id = $1
  `, tenantID).Scan(&enabled, &from)
	if err != nil {
		return false, "", err
	}
	return enabled, from, nil
}

func (s *Store) UpdateSettings(ctx context.Context, tenantID string, enabled bool, from string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notification_settings (tenant_id, email_enabled, email_from)
    VALUES ($1,$2,NULLIF($3,''))
    ON CONFLICT (tenant_id) DO UPDATE SET email_enabled = EXCLUDED.email_enabled, email_from = EXCLUDED.email_from
  `, tenantID, enabled, from)
	return err
}
