package cache

// SQLiteDSN exposes sqliteDSN for testing.
func SQLiteDSN(path string) string {
	return sqliteDSN(path)
}
