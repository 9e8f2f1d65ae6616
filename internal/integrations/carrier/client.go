package carrier

import "context"

// Client fetches the raw provider body for one tracking number.
// Implementations: ship24.Client (real API) and fake.FakeClient (offline).
type Client interface {
	Fetch(ctx context.Context, trackingNumber string) ([]byte, error)
}
