// Package wire defines the HTTP payloads exchanged between the sync engine's
// remote client and the authority.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/invsync/internal/command"
	"github.com/roach88/invsync/internal/ir"
)

// Endpoints and headers.
const (
	SyncPath   = "/api/action/sync"
	ResyncPath = "/api/action/resync"

	HeaderUser          = "X-Invsync-User"
	HeaderCorrelationID = "X-Correlation-Id"
)

// SyncRequest carries one command. SyncedAt is the authority version the
// sender believes it is building on.
type SyncRequest struct {
	ID       string         `json:"id"`
	Action   command.Action `json:"action"`
	Args     ir.IRObject    `json:"args"`
	SyncedAt int64          `json:"synced_at"`
}

// NewSyncRequest builds the wire form of cmd.
func NewSyncRequest(id string, cmd command.Command, syncedAt int64) SyncRequest {
	return SyncRequest{ID: id, Action: cmd.Action(), Args: cmd.Args(), SyncedAt: syncedAt}
}

// Command decodes the carried command.
func (r SyncRequest) Command() (command.Command, error) {
	return command.Decode(r.Action, r.Args)
}

// SyncResponse acknowledges a command with the new authority version.
type SyncResponse struct {
	SyncedAt int64 `json:"synced_at"`
}

// ResyncResponse is a full authoritative snapshot. Inventory holds the
// encoding produced by inventory.Inventory.Encode.
type ResyncResponse struct {
	SyncedAt  int64           `json:"synced_at"`
	Inventory json.RawMessage `json:"inventory"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by ErrorResponse.
const (
	CodeInvalid  = "INVALID"
	CodeStale    = "STALE"
	CodeRejected = "REJECTED"
	CodeInternal = "INTERNAL"
)

// DecodeSyncRequest validates raw against the request schema and decodes it.
func DecodeSyncRequest(raw []byte) (SyncRequest, error) {
	if err := ValidateSyncRequest(raw); err != nil {
		return SyncRequest{}, err
	}
	var req SyncRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return SyncRequest{}, fmt.Errorf("decode sync request: %w", err)
	}
	return req, nil
}
