package sanitize

import (
	"context"
	"flag"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"certcheck/models"
	"certcheck/pkg/store"
	"certcheck/process/tooling"
)

// DefaultTables are the tables an audit reset clears.
const DefaultTables = "logs,refresh_tokens"

var tableNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseTables splits a comma-separated list, dropping blanks and
// anything that is not a plain identifier.
func ParseTables(list string) (valid, rejected []string) {
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !tableNameRE.MatchString(p) {
			rejected = append(rejected, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, rejected
}

// TruncateStatement quotes the already validated names into one statement.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("\"%s\"", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run executes the db_sanitize CLI behavior. Exported so a small cmd/main can call it.
func Run() {
	var (
		dryRun = flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
		yes    = flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
		reseed = flag.Bool("reseed", false, "After truncation, reseed roles, the admin account and the sample certificates")
		tables = flag.String("tables", DefaultTables, "Comma-separated list of tables to truncate")
	)
	flag.Parse()

	logger := tooling.Logger()
	defer logger.Sync() //nolint:errcheck
	gdb := tooling.MustDB(logger)

	wanted, rejected := ParseTables(*tables)
	for _, r := range rejected {
		logger.Warn("skipping invalid table name", zap.String("table", r))
	}

	existing := []string{}
	for _, t := range wanted {
		var cnt int64
		if err := gdb.Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			logger.Fatal("failed to query pg_tables", zap.String("table", t), zap.Error(err))
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			logger.Info("table not found, skipping", zap.String("table", t))
		}
	}
	if len(existing) == 0 {
		fmt.Println("no requested tables present in the database; nothing to do")
		return
	}

	fmt.Println("Tables considered for truncation:")
	for _, t := range existing {
		fmt.Printf(" - %s\n", t)
	}
	if *dryRun {
		fmt.Println("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}

	stmt := TruncateStatement(existing)
	logger.Info("executing", zap.String("sql", stmt))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
		logger.Fatal("truncate failed", zap.Error(err))
	}
	fmt.Println("Truncate completed.")

	if *reseed {
		if err := reseedDefaults(ctx, gdb); err != nil {
			logger.Fatal("reseed failed", zap.Error(err))
		}
		fmt.Println("Reseed completed.")
	}
}

func reseedDefaults(ctx context.Context, gdb *gorm.DB) error {
	gdb = gdb.WithContext(ctx)
	if err := store.EnsureRoles(gdb); err != nil {
		return err
	}
	var n int64
	gdb.Model(&models.User{}).Where("username = ?", "admin").Count(&n)
	if n == 0 {
		if _, err := store.CreateUser(gdb, "admin", "admin123", models.RoleAdministrator); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	}
	reg := store.NewRegistry(gdb)
	for _, c := range store.SampleCertificates() {
		if err := reg.Upsert(ctx, &c); err != nil {
			return err
		}
	}
	return nil
}
