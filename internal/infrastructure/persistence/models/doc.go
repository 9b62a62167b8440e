// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free from
// ORM concerns.
//
// Key Principles:
// 1. Domain entities carry no GORM tags
// 2. Persistence models hold the GORM annotations and table mappings
// 3. ToDomain/FromDomain convert between the two
// 4. Repositories only ever read and write persistence models
//
// Tables:
// - inventory_items, item_images: the seller's inventory
// - marketplace_listings: one row per (item, marketplace) pair
// - marketplace_accounts: stored credentials per marketplace
//
// The SQL files under migrations/ must stay in step with these models.
package models
