package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Dangling describes a persisted reference to a tag the compiled catalog no
// longer contains.
type Dangling struct {
	Table      string
	Permission string
	Rows       int64
}

// CheckIntegrity scans the grant and override tables for permission tags
// outside the catalog. It is run at deploy time and periodically by the
// worker; a non-empty result means a tag was retired while still referenced
// and the migration must not proceed.
func CheckIntegrity(ctx context.Context, pool *pgxpool.Pool) ([]Dangling, error) {
	tags := All()
	raw := make([]string, len(tags))
	for i, t := range tags {
		raw[i] = string(t)
	}

	var found []Dangling
	for _, table := range []string{"role_grants", "user_overrides"} {
		query := fmt.Sprintf(`SELECT permission, COUNT(*) FROM %s WHERE permission != ALL($1) GROUP BY permission`, table)
		rows, err := pool.Query(ctx, query, raw)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", table, err)
		}
		for rows.Next() {
			d := Dangling{Table: table}
			if err := rows.Scan(&d.Permission, &d.Rows); err != nil {
				rows.Close()
				return nil, fmt.Errorf("catalog: scan %s: %w", table, err)
			}
			found = append(found, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", table, err)
		}
	}
	return found, nil
}
