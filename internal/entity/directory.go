package entity

import "github.com/uptrace/bun"

// User is the display projection of a marketplace account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             string `bun:"id,pk"`
	FullName       string `bun:"full_name,notnull"`
	Email          string `bun:"email,notnull"`
	Phone          string `bun:"phone"`
	ProfilePicture string `bun:"profile_picture"`
}

// Category groups auctions for browsing.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}
