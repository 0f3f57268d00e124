package query_test

import (
	"testing"

	"github.com/mickamy/auditlog/internal/query"
)

func TestParseDML(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		sql     string
		wantDML query.DML
		wantOK  bool
	}{
		{
			name:    "insert simple",
			sql:     "INSERT INTO posts (id) VALUES ($1)",
			wantDML: query.DML{Op: "INSERT", Table: "posts", HasReturning: false},
			wantOK:  true,
		},
		{
			name: "insert with returning",
			sql: `insert into public.posts (id)
values ($1)
returning *`,
			wantDML: query.DML{Op: "INSERT", Table: "public.posts", HasReturning: true},
			wantOK:  true,
		},
		{
			name:    "update with alias",
			sql:     `UPDATE posts o SET views = views + 1 WHERE id = $1`,
			wantDML: query.DML{Op: "UPDATE", Table: "posts", HasReturning: false},
			wantOK:  true,
		},
		{
			name: "delete with returning and cte",
			sql: `WITH c AS (
	SELECT id FROM posts WHERE status = 'obsolete'
) DELETE FROM public.posts o USING c WHERE o.id = c.id RETURNING o.id`,
			wantDML: query.DML{Op: "DELETE", Table: "public.posts", HasReturning: true},
			wantOK:  true,
		},
		{
			name:   "unknown statement",
			sql:    "SELECT * FROM posts",
			wantOK: false,
		},
		{
			name:    "not top level returning word",
			sql:     "UPDATE posts SET note='returning soon'",
			wantDML: query.DML{Op: "UPDATE", Table: "posts", HasReturning: true},
			wantOK:  true,
		},
		{
			name:    "quoted identifier with alias",
			sql:     `UPDATE "Blog"."Posts" so SET status = $1 WHERE so.id = $2`,
			wantDML: query.DML{Op: "UPDATE", Table: `"Blog"."Posts"`, HasReturning: false},
			wantOK:  true,
		},
		{
			name:    "sqlite insert with question placeholders",
			sql:     `INSERT INTO authors (name, password) VALUES (?, ?) RETURNING *`,
			wantDML: query.DML{Op: "INSERT", Table: "authors", HasReturning: true},
			wantOK:  true,
		},
		{
			name:    "flush insert into quoted log table",
			sql:     `INSERT INTO "auditlog_log" ("action", "level") VALUES (?, ?)`,
			wantDML: query.DML{Op: "INSERT", Table: `"auditlog_log"`, HasReturning: false},
			wantOK:  true,
		},
		{
			name:    "delete with schema without returning",
			sql:     "DELETE FROM public.posts WHERE created_at < now() - interval '1 day'",
			wantDML: query.DML{Op: "DELETE", Table: "public.posts", HasReturning: false},
			wantOK:  true,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := query.ParseDML(tc.sql)
			if ok != tc.wantOK {
				t.Fatalf("ParseDML ok = %t, want %t", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.Op != tc.wantDML.Op || got.Table != tc.wantDML.Table || got.HasReturning != tc.wantDML.HasReturning {
				t.Fatalf("ParseDML(%q) = %#v, want %#v", tc.sql, got, tc.wantDML)
			}
		})
	}
}

func TestAppendReturningAll(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		sql  string
		want string
		ok   bool
	}{
		{
			name: "simple insert",
			sql:  "INSERT INTO posts (id) VALUES ($1)",
			want: "INSERT INTO posts (id) VALUES ($1)\nRETURNING *",
			ok:   true,
		},
		{
			name: "trim whitespace",
			sql:  "  UPDATE posts SET status='x'  ",
			want: "UPDATE posts SET status='x'\nRETURNING *",
			ok:   true,
		},
		{
			name: "keep semicolon",
			sql:  "DELETE FROM posts WHERE id=$1;",
			want: "DELETE FROM posts WHERE id=$1\nRETURNING *;",
			ok:   true,
		},
		{
			name: "question placeholders with semicolon",
			sql:  "UPDATE posts SET title = ? WHERE id = ?;",
			want: "UPDATE posts SET title = ? WHERE id = ?\nRETURNING *;",
			ok:   true,
		},
		{
			name: "empty string",
			sql:  "   ",
			want: "   ",
			ok:   false,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := query.AppendReturningAll(tc.sql)
			if ok != tc.ok {
				t.Fatalf("AppendReturningAll ok = %t, want %t", ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("AppendReturningAll(%q) = %q, want %q", tc.sql, got, tc.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name   string
		n      int
		dollar bool
		want   string
	}{
		{name: "question", n: 3, want: "?, ?, ?"},
		{name: "dollar", n: 3, dollar: true, want: "$1, $2, $3"},
		{name: "single", n: 1, dollar: true, want: "$1"},
		{name: "none", n: 0, want: ""},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := query.Placeholders(tc.n, tc.dollar)
			if got != tc.want {
				t.Fatalf("Placeholders(%d, %t) = %q, want %q", tc.n, tc.dollar, got, tc.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name   string
		sql    string
		dollar bool
		want   string
	}{
		{name: "question kept", sql: "a = ? AND b = ?", want: "a = ? AND b = ?"},
		{name: "dollar", sql: "a = ? AND b = ?", dollar: true, want: "a = $1 AND b = $2"},
		{name: "literal untouched", sql: "title = 'why?' AND id = ?", dollar: true, want: "title = 'why?' AND id = $1"},
		{name: "escaped quote", sql: "title = 'it''s?' AND id = ?", dollar: true, want: "title = 'it''s?' AND id = $1"},
		{name: "no placeholders", sql: "SELECT 1", dollar: true, want: "SELECT 1"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := query.Rebind(tc.sql, tc.dollar)
			if got != tc.want {
				t.Fatalf("Rebind(%q, %t) = %q, want %q", tc.sql, tc.dollar, got, tc.want)
			}
		})
	}
}
