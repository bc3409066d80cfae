package db

import (
	"io/fs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/db/models"
)

var _ = Describe("Database setup", func() {
	var logger *logrus.Logger

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetOutput(GinkgoWriter)
	})

	DescribeTable("driver selection",
		func(url, driver string) {
			config := &Config{URL: url, Logger: logger}
			Expect(config.Driver()).To(Equal(driver))
		},
		Entry("postgres scheme", "postgres://u:p@localhost:5432/digest", DriverPostgres),
		Entry("postgresql scheme", "postgresql://localhost/digest", DriverPostgres),
		Entry("sqlite file", "twitter_monitor.db", DriverSQLite),
		Entry("sqlite url", "sqlite:///twitter_monitor.db", DriverSQLite),
	)

	It("should strip the sqlite url prefix", func() {
		config := &Config{URL: "sqlite:///data/tasks.db", Logger: logger}
		Expect(config.sqlitePath()).To(Equal("data/tasks.db"))
	})

	It("should create the task table in sqlite", func() {
		database, err := SetupDatabase(&Config{URL: ":memory:", Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		defer Close(database)

		Expect(database.Migrator().HasTable(&models.ScheduledTask{})).To(BeTrue())
	})

	It("should require a logger", func() {
		_, err := SetupDatabase(&Config{URL: ":memory:"})
		Expect(err).To(HaveOccurred())
	})

	It("should embed the postgres migrations", func() {
		files, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
		Expect(err).NotTo(HaveOccurred())
		Expect(files).NotTo(BeEmpty())
	})
})
