package dispatch

import (
	"context"

	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/portal/livewire"
)

// ContractsPortal lists contracts by asking the contracts table component for a larger page.
type ContractsPortal struct {
	Client         *portal.Client
	Livewire       livewire.Authenticator
	ContractsURL   string
	RecordsPerPage string
}

func (p ContractsPortal) Fetch(ctx context.Context, url string) portal.FetchResult {
	return p.Client.Fetch(ctx, url)
}

func (p ContractsPortal) ListContracts(ctx context.Context) portal.FetchResult {
	return p.Livewire.UpdateTable(ctx, p.Client, p.ContractsURL, map[string]any{
		"tableRecordsPerPage": p.RecordsPerPage,
	})
}
