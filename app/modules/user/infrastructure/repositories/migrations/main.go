package usermigrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()

func init() {
	// Migration ids come from the registering file's name.
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}
