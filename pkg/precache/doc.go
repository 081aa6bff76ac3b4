// Package precache fetches a deployment's critical assets in parallel
// before the deployment may go live.
//
// Every asset must arrive with a 2xx answer. The first failure cancels the
// remaining fetches and is returned as an *AssetError; nothing is returned
// for a partial set, so a caller can never store half a deployment.
//
// Example usage:
//
//	p := precache.New(originClient, precache.DefaultConfig())
//	assets, err := p.FetchAll(ctx, []string{"/", "/index.html", "/styles.css"})
//	if err != nil {
//		return err
//	}
//	err = handle.AddAll(ctx, assets.Entries())
//
// The precacher:
//   - Spawns a bounded worker pool (default 6 workers)
//   - Applies a timeout to each asset
//   - Snapshots each response into a cache entry
//   - Fails fast on the first missing asset
package precache
