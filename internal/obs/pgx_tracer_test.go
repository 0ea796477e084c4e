package obs

import "testing"

func TestDescribeStatement(t *testing.T) {
	cases := []struct {
		sql, op, table string
	}{
		{"SELECT id, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE", "SELECT", "products"},
		{"insert into orders(id, user_id) values ($1, $2)", "INSERT", "orders"},
		{"UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2", "UPDATE", "products"},
		{"DELETE FROM cart_items WHERE user_id = $1", "DELETE", "cart_items"},
		{"begin", "BEGIN", ""},
		{"   ", "unknown", ""},
	}
	for _, tc := range cases {
		op, table := describeStatement(tc.sql)
		if op != tc.op || table != tc.table {
			t.Errorf("describeStatement(%q) = %q %q, want %q %q", tc.sql, op, table, tc.op, tc.table)
		}
	}
}
