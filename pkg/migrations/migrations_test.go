package migrations_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/seednote/seed-worker/internal/config"
	"github.com/seednote/seed-worker/internal/store"
	"github.com/seednote/seed-worker/pkg/migrations"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var gormdb *gorm.DB

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Store.Driver = config.StoreDriverSqlite
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "migrations.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db
	})

	AfterAll(func() {
		sqlDB, err := gormdb.DB()
		Expect(err).To(BeNil())
		_ = sqlDB.Close()
	})

	It("successfully migrates the db", func() {
		Expect(migrations.MigrateStore(gormdb)).To(Succeed())
		Expect(gormdb.Migrator().HasTable("seeds")).To(BeTrue())
		Expect(gormdb.Migrator().HasColumn("seeds", "sprouts")).To(BeTrue())

		version, err := migrations.Version(gormdb)
		Expect(err).To(BeNil())
		Expect(version).To(Equal(int64(20250101000000)))
	})

	It("is idempotent", func() {
		Expect(migrations.MigrateStore(gormdb)).To(Succeed())
	})
})
