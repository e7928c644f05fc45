package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gratbox/graph-csv-sync/internal/graph"
	"github.com/gratbox/graph-csv-sync/internal/record"
	"github.com/gratbox/graph-csv-sync/internal/state"
)

// AttrGroupTag is the single mutable attribute managed on an Autopilot
// device identity. CSV schemas and remote records must agree on this name.
const AttrGroupTag = "groupTag"

// TagProvider reconciles Autopilot group tags keyed by device serial number.
// Devices cannot be enrolled through this path, so Add fails; Remove clears
// the tag rather than deleting the identity.
type TagProvider struct {
	client *graph.Client
	cache  state.Store
}

func New(client *graph.Client, cache state.Store) *TagProvider {
	return &TagProvider{client: client, cache: cache}
}

type identity struct {
	ID                    string    `json:"id"`
	SerialNumber          string    `json:"serialNumber"`
	GroupTag              string    `json:"groupTag"`
	Model                 string    `json:"model"`
	Manufacturer          string    `json:"manufacturer"`
	LastContactedDateTime time.Time `json:"lastContactedDateTime"`
}

func (p *TagProvider) Fetch(ctx context.Context) ([]record.RemoteRecord, error) {
	u := fmt.Sprintf("%s/deviceManagement/windowsAutopilotDeviceIdentities?$top=999", graph.BaseURL)

	identities, err := graph.FetchAll[identity](ctx, p.client, u)
	if err != nil {
		return nil, fmt.Errorf("fetch autopilot identities: %w", err)
	}

	records := make([]record.RemoteRecord, 0, len(identities))
	for _, id := range identities {
		records = append(records, record.RemoteRecord{
			Key: id.SerialNumber,
			ID:  id.ID,
			Attrs: map[string]string{
				AttrGroupTag: id.GroupTag,
			},
			Created: id.LastContactedDateTime,
		})

		if p.cache != nil {
			entry := state.CacheEntry{Serial: id.SerialNumber, IdentityID: id.ID, GroupTag: id.GroupTag}
			if err := p.cache.PutCacheEntry(entry); err != nil {
				slog.Warn("fail cache autopilot identity", "serial", id.SerialNumber, "error", err)
			}
		}
	}
	return records, nil
}

// Add cannot enroll a device; enrollment happens through the hardware-hash
// import flow, not tag reconciliation.
func (p *TagProvider) Add(ctx context.Context, desired record.DesiredRecord) error {
	return &graph.APIError{
		Code:    "DeviceNotEnrolled",
		Message: fmt.Sprintf("serial %s is not enrolled in autopilot", desired.Key),
	}
}

func (p *TagProvider) Update(ctx context.Context, desired record.DesiredRecord, remote record.RemoteRecord) error {
	tag := desired.Attrs[AttrGroupTag]
	slog.Info("Setting autopilot group tag", "serial", desired.Key, "tag", tag)
	return p.setTag(ctx, remote, tag)
}

// Remove clears the group tag.
func (p *TagProvider) Remove(ctx context.Context, remote record.RemoteRecord) error {
	slog.Info("Clearing autopilot group tag", "serial", remote.Key)
	return p.setTag(ctx, remote, "")
}

func (p *TagProvider) setTag(ctx context.Context, remote record.RemoteRecord, tag string) error {
	id := remote.ID
	if id == "" {
		entry, found, err := p.lookupSerial(remote.Key)
		if err != nil {
			return err
		}
		if !found {
			return &graph.APIError{
				Code:    "DeviceNotFound",
				Message: fmt.Sprintf("no autopilot identity for serial %s", remote.Key),
			}
		}
		id = entry.IdentityID
	}

	u := fmt.Sprintf("%s/deviceManagement/windowsAutopilotDeviceIdentities/%s/updateDeviceProperties", graph.BaseURL, url.PathEscape(id))
	body := map[string]string{AttrGroupTag: tag}
	return p.client.Post(ctx, u, body)
}

func (p *TagProvider) lookupSerial(serial string) (state.CacheEntry, bool, error) {
	if p.cache == nil {
		return state.CacheEntry{}, false, nil
	}
	entry, found, err := p.cache.GetCacheEntry(serial)
	if err != nil {
		return state.CacheEntry{}, false, fmt.Errorf("cache lookup for serial %s: %w", serial, err)
	}
	return entry, found, nil
}
