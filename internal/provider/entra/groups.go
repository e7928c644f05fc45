package entra

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gratbox/graph-csv-sync/internal/graph"
	"github.com/gratbox/graph-csv-sync/internal/record"
)

// GroupProvider reconciles the membership of one Entra ID group. Record keys
// are directory object ids; membership has no mutable attributes, so plans
// against it only ever add and remove.
type GroupProvider struct {
	client  *graph.Client
	groupID string
}

func New(client *graph.Client, groupID string) (*GroupProvider, error) {
	if groupID == "" {
		return nil, fmt.Errorf("entra group id empty")
	}
	return &GroupProvider{client: client, groupID: groupID}, nil
}

type member struct {
	ID              string    `json:"id"`
	CreatedDateTime time.Time `json:"createdDateTime"`
}

func (p *GroupProvider) Fetch(ctx context.Context) ([]record.RemoteRecord, error) {
	u := fmt.Sprintf("%s/groups/%s/members?$select=id,createdDateTime&$top=999", graph.BaseURL, url.PathEscape(p.groupID))

	members, err := graph.FetchAll[member](ctx, p.client, u)
	if err != nil {
		return nil, fmt.Errorf("fetch group members: %w", err)
	}

	records := make([]record.RemoteRecord, 0, len(members))
	for _, m := range members {
		records = append(records, record.RemoteRecord{
			Key:     m.ID,
			ID:      m.ID,
			Created: m.CreatedDateTime,
		})
	}
	return records, nil
}

func (p *GroupProvider) Add(ctx context.Context, desired record.DesiredRecord) error {
	slog.Info("Adding group member", "group", p.groupID, "member", desired.Key)

	u := fmt.Sprintf("%s/groups/%s/members/$ref", graph.BaseURL, url.PathEscape(p.groupID))
	body := map[string]string{
		"@odata.id": fmt.Sprintf("%s/directoryObjects/%s", graph.BaseURL, desired.Key),
	}
	return p.client.Post(ctx, u, body)
}

// Update is a no-op: a membership edge carries no mutable attributes.
func (p *GroupProvider) Update(ctx context.Context, desired record.DesiredRecord, remote record.RemoteRecord) error {
	return nil
}

func (p *GroupProvider) Remove(ctx context.Context, remote record.RemoteRecord) error {
	slog.Info("Removing group member", "group", p.groupID, "member", remote.Key)

	u := fmt.Sprintf("%s/groups/%s/members/%s/$ref", graph.BaseURL, url.PathEscape(p.groupID), url.PathEscape(remote.ID))
	return p.client.Delete(ctx, u)
}
