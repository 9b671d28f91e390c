package models

// ModelsToAutoMigrate lists the models whose tables AutoMigrate creates for
// embedded databases. Postgres uses the migrate command instead.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&BulkStatus{},
	}
}
