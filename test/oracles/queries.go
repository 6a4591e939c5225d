package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the escrow invariants. Each query selects violating rows, so an
// empty result means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_balance_identity",
			SQL: `SELECT id, balance, total_deposited, total_released FROM escrow_accounts
                  WHERE balance <> total_deposited - total_released`,
		},
		{
			Name: "O2_balance_non_negative",
			SQL:  `SELECT id, balance FROM escrow_accounts WHERE balance < 0`,
		},
		{
			Name: "O3_ledger_matches_totals",
			SQL: `SELECT a.id, a.total_deposited, a.total_released, l.deposited, l.released
                  FROM escrow_accounts a
                  JOIN LATERAL (
                      SELECT COALESCE(SUM(amount) FILTER (WHERE kind = 'deposit'), 0) AS deposited,
                             COALESCE(SUM(amount) FILTER (WHERE kind = 'release'), 0) AS released
                      FROM escrow_entries e WHERE e.account_id = a.id) l ON true
                  WHERE a.total_deposited <> l.deposited OR a.total_released <> l.released`,
		},
		{
			Name: "O4_last_entry_balance",
			SQL: `SELECT a.id, a.balance, e.balance_after
                  FROM escrow_accounts a
                  JOIN LATERAL (
                      SELECT balance_after FROM escrow_entries
                      WHERE account_id = a.id ORDER BY id DESC LIMIT 1) e ON true
                  WHERE e.balance_after <> a.balance`,
		},
		{
			Name: "O5_running_balance",
			SQL: `WITH running AS (
                      SELECT id, account_id, balance_after,
                             SUM(CASE kind WHEN 'deposit' THEN amount ELSE -amount END)
                                 OVER (PARTITION BY account_id ORDER BY id) AS expected
                      FROM escrow_entries)
                  SELECT * FROM running WHERE balance_after <> expected OR balance_after < 0`,
		},
		{
			Name: "O6_one_account_per_contract",
			SQL: `SELECT c.id FROM contracts c
                  LEFT JOIN escrow_accounts a ON a.contract_id = c.id
                  GROUP BY c.id HAVING COUNT(a.id) <> 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
