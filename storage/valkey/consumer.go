package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oauthsp/oauthsp/storage"
)

// consumerJSON is the JSON representation of a registered consumer.
type consumerJSON struct {
	Key                string `json:"key"`
	Secret             string `json:"secret"`
	Name               string `json:"name,omitempty"`
	Type               string `json:"type,omitempty"`
	DeveloperEmail     string `json:"developer_email,omitempty"`
	URI                string `json:"uri,omitempty"`
	Description        string `json:"description,omitempty"`
	Private            bool   `json:"private,omitempty"`
	EditableAttributes bool   `json:"editable_attributes,omitempty"`
	RegistrationDate   int64  `json:"registration_date,omitempty"`
}

func toConsumerJSON(c *storage.Consumer) *consumerJSON {
	j := &consumerJSON{
		Key:                c.Key,
		Secret:             c.Secret,
		Name:               c.Name,
		Type:               string(c.Type),
		DeveloperEmail:     c.DeveloperEmail,
		URI:                c.URI,
		Description:        c.Description,
		Private:            c.Private,
		EditableAttributes: c.EditableAttributes,
	}
	if !c.RegistrationDate.IsZero() {
		j.RegistrationDate = c.RegistrationDate.Unix()
	}
	return j
}

func fromConsumerJSON(j *consumerJSON) *storage.Consumer {
	if j == nil {
		return nil
	}
	c := &storage.Consumer{
		Key:                j.Key,
		Secret:             j.Secret,
		Name:               j.Name,
		Type:               storage.ConsumerType(j.Type),
		DeveloperEmail:     j.DeveloperEmail,
		URI:                j.URI,
		Description:        j.Description,
		Private:            j.Private,
		EditableAttributes: j.EditableAttributes,
	}
	if j.RegistrationDate > 0 {
		c.RegistrationDate = time.Unix(j.RegistrationDate, 0)
	}
	return c
}

// SaveConsumer registers or replaces a consumer. Consumer records have no
// TTL; registration is owned by the deployment.
func (s *Store) SaveConsumer(ctx context.Context, consumer *storage.Consumer) error {
	if consumer == nil || consumer.Key == "" {
		return fmt.Errorf("consumer key cannot be empty")
	}

	data, err := json.Marshal(toConsumerJSON(consumer))
	if err != nil {
		return fmt.Errorf("failed to marshal consumer: %w", err)
	}

	key := s.consumerKey(consumer.Key)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return infraError("save consumer", err)
	}

	s.logger.Debug("Saved consumer", "consumer_key", consumer.Key)
	return nil
}

// FindConsumer returns the consumer with the given key, or ErrNotFound.
func (s *Store) FindConsumer(ctx context.Context, key string) (*storage.Consumer, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.consumerKey(key)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, infraError("find consumer", err)
	}

	var j consumerJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consumer: %w", err)
	}

	return fromConsumerJSON(&j), nil
}
