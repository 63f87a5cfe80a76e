package models

import (
	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
)

// MigrateTable runs AutoMigrate for every table the engine touches. The
// collaborator tables (customer, item, holiday, routing) are owned by the
// back-office service; migrating them here keeps local and CI databases
// usable without that service.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Customer{},
		&CustomerAddress{},
		&CustomerWeekRoute{},
		&Route{},
		&Item{},
		&ItemGroup{},
		&Holiday{},
		&StandingOrder{},
		&StandingOrderItem{},
		&Cart{},
		&CartItem{},
		&MaterializationRun{},
	)
	utils.ErrorPanic(err)
}
