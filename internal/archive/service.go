package archive

import "context"

// Service is the remote archive store. Mutating calls return the address
// of the new snapshot, or the empty Address when the service produced none
// (an idempotent or no-op change).
type Service interface {
	// Get reads path within the archive at addr.
	Get(ctx context.Context, addr Address, path string, target StoreTarget) (*GetResult, error)

	// Update writes files under path, using addr as the base snapshot.
	Update(ctx context.Context, addr Address, files []File, path string, target StoreTarget) (Address, error)

	// Truncate removes path (a file or a directory) from the archive at addr.
	Truncate(ctx context.Context, addr Address, path string, target StoreTarget) (Address, error)

	// Push copies the archive at addr to target.
	Push(ctx context.Context, addr Address, target StoreTarget) (Address, error)
}
