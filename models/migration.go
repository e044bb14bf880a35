package models

import (
	"github.com/akarakonline-arch/hggzk-sub012/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Property{},
		&Unit{},
		&Booking{},
		&DailyScheduleEntry{},
		&IndexSyncState{},
	)
	if err != nil {
		panic(err)
	}
}
