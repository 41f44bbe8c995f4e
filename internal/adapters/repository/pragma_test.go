package repository

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConnectionPragmas(t *testing.T) {
	Convey("Given an opened store", t, func() {
		s, err := Open(filepath.Join(t.TempDir(), "pragmas.db"))
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		Convey("Then the DSN pragmas are in effect on the connection", func() {
			var journalMode string
			So(s.db.QueryRow(`PRAGMA journal_mode`).Scan(&journalMode), ShouldBeNil)
			So(journalMode, ShouldEqual, "wal")

			var foreignKeys int
			So(s.db.QueryRow(`PRAGMA foreign_keys`).Scan(&foreignKeys), ShouldBeNil)
			So(foreignKeys, ShouldEqual, 1)

			var busyTimeout int
			So(s.db.QueryRow(`PRAGMA busy_timeout`).Scan(&busyTimeout), ShouldBeNil)
			So(busyTimeout, ShouldEqual, 5000)
		})

		Convey("And foreign keys are enforced", func() {
			_, err := s.db.Exec(`
				INSERT INTO participants
					(mission_id, user_id, contribution, joined_at, updated_at)
				VALUES ('no-such-mission', 'u1', '{}', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
			So(err, ShouldNotBeNil)
		})
	})
}
