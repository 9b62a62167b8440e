// Package marketplace contains the marketplace synchronization bounded context.
// It models how local inventory items are projected onto external resale
// marketplaces and how those projections are kept consistent.
//
// Key concepts:
//   - InventoryItem: the local, sellable unit owned by the inventory store
//   - MarketplaceListing: the projection of one item onto one marketplace (a "pair")
//   - Adapter: port implemented once per marketplace (REST API or browser automation)
//   - SyncResult / SyncError: the classified outcome of every adapter call
//   - MarketplaceAccount: per-marketplace credentials and session state
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package marketplace
