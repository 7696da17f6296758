package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func scoreDoc(id, user, chart string) *model.ScoreDocument {
	return &model.ScoreDocument{
		DryScore: model.DryScore{Game: "iidx"},
		ScoreID:  id, UserID: user, ChartID: chart,
	}
}

func TestMemory_Scores(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		m := repository.NewMemory()

		Convey("When a score is inserted", func() {
			ok, err := m.Insert(ctx, scoreDoc("T1", "u1", "c1"))

			Convey("Then it exists and a second insert is a no-op", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				exists, _ := m.Exists(ctx, "T1")
				So(exists, ShouldBeTrue)

				again, err := m.Insert(ctx, scoreDoc("T1", "u1", "c1"))
				So(err, ShouldBeNil)
				So(again, ShouldBeFalse)
				So(m.ScoreCount(), ShouldEqual, 1)
			})
		})

		Convey("When inserting many with an existing id", func() {
			_, _ = m.Insert(ctx, scoreDoc("T1", "u1", "c1"))
			ids, err := m.InsertMany(ctx, []*model.ScoreDocument{
				scoreDoc("T1", "u1", "c1"), scoreDoc("T2", "u1", "c2"), scoreDoc("T3", "u2", "c1"),
			})

			Convey("Then only the new ids are reported", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"T2", "T3"})
			})

			Convey("Then scores are found per user and chart", func() {
				docs, err := m.FindByUserCharts(ctx, "u1", []string{"c1", "c2"})
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 2)
				So(docs[0].ScoreID, ShouldEqual, "T1")
			})
		})

		Convey("When a document has no id", func() {
			_, err := m.Insert(ctx, scoreDoc("", "u1", "c1"))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, repository.ErrInvalidDocument), ShouldBeTrue)
			})
		})

		Convey("When scores are blacklisted", func() {
			So(m.AddToBlacklist(ctx, "u1", "T9"), ShouldBeNil)
			bl, err := m.Blacklist(ctx, "u1")

			Convey("Then the user's set holds them", func() {
				So(err, ShouldBeNil)
				_, ok := bl["T9"]
				So(ok, ShouldBeTrue)
				other, _ := m.Blacklist(ctx, "u2")
				So(len(other), ShouldEqual, 0)
			})
		})
	})
}

func TestMemory_Goals(t *testing.T) {
	Convey("Given goals on charts and folders", t, func() {
		ctx := context.Background()
		m := repository.NewMemory()
		So(m.PutGoal(ctx, &model.Goal{GoalID: "g1", Game: "iidx", Charts: model.GoalCharts{Type: model.GoalChartsSingle, Data: []string{"c1"}}}), ShouldBeNil)
		So(m.PutGoal(ctx, &model.Goal{GoalID: "g2", Game: "iidx", Charts: model.GoalCharts{Type: model.GoalChartsFolder, Data: []string{"f1"}}}), ShouldBeNil)
		So(m.PutGoal(ctx, &model.Goal{GoalID: "g3", Game: "ddr", Charts: model.GoalCharts{Type: model.GoalChartsSingle, Data: []string{"c1"}}}), ShouldBeNil)

		Convey("When looking up by chart and folder", func() {
			goals, err := m.GoalsForCharts(ctx, "iidx", []string{"c1"}, []string{"f1"})

			Convey("Then both kinds match within the game", func() {
				So(err, ShouldBeNil)
				So(len(goals), ShouldEqual, 2)
				So(goals[0].GoalID, ShouldEqual, "g1")
				So(goals[1].GoalID, ShouldEqual, "g2")
			})
		})

		Convey("When looking up a folder", func() {
			goals, _ := m.GoalsInFolder(ctx, "f1")
			So(len(goals), ShouldEqual, 1)
		})

		Convey("When the bulk write is empty", func() {
			err := m.BulkUpdateSubscriptions(ctx, nil)

			Convey("Then it is refused and not counted", func() {
				So(errors.Is(err, repository.ErrEmptyBulkWrite), ShouldBeTrue)
				So(m.BulkWrites(), ShouldEqual, 0)
			})
		})

		Convey("When subscriptions are written in bulk", func() {
			So(m.PutSubscription(ctx, &model.GoalSubscription{GoalID: "g1", UserID: "u1"}), ShouldBeNil)
			err := m.BulkUpdateSubscriptions(ctx, []*model.GoalSubscription{
				{GoalID: "g1", UserID: "u1", Achieved: true},
				{GoalID: "g2", UserID: "u2"},
			})

			Convey("Then they replace the stored ones", func() {
				So(err, ShouldBeNil)
				So(m.BulkWrites(), ShouldEqual, 1)
				subs, _ := m.SubscriptionsFor(ctx, "u1", []string{"g1", "g2"})
				So(len(subs), ShouldEqual, 1)
				So(subs[0].Achieved, ShouldBeTrue)
				all, _ := m.SubscriptionsForGoals(ctx, []string{"g1", "g2"})
				So(len(all), ShouldEqual, 2)
			})
		})
	})
}

func TestMemory_Orphans(t *testing.T) {
	Convey("Given an orphan chart record", t, func() {
		ctx := context.Background()
		m := repository.NewMemory()
		chart := &model.OrphanChart{Fingerprint: "fp1", Game: "bms", Admittable: true}

		Convey("When the same user attaches twice and another once", func() {
			n1, _ := m.AttachUser(ctx, chart, "u1")
			n2, _ := m.AttachUser(ctx, chart, "u1")
			n3, _ := m.AttachUser(ctx, &model.OrphanChart{Fingerprint: "fp1", Admittable: false}, "u2")

			Convey("Then users form a set and the first record is kept", func() {
				So(n1, ShouldEqual, 1)
				So(n2, ShouldEqual, 1)
				So(n3, ShouldEqual, 2)
				c, err := m.GetOrphanChart(ctx, "fp1")
				So(err, ShouldBeNil)
				So(c.Admittable, ShouldBeTrue)
				So(c.UserIDs, ShouldResemble, []string{"u1", "u2"})
			})

			Convey("Then exactly one claim wins", func() {
				_, first, _ := m.ClaimOrphanChart(ctx, "fp1")
				_, second, _ := m.ClaimOrphanChart(ctx, "fp1")
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				_, err := m.GetOrphanChart(ctx, "fp1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When many users attach concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = m.AttachUser(ctx, chart, fmt.Sprintf("u%d", i))
				}(i)
			}
			wg.Wait()

			Convey("Then no update is lost", func() {
				c, _ := m.GetOrphanChart(ctx, "fp1")
				So(len(c.UserIDs), ShouldEqual, 20)
			})
		})

		Convey("When orphan scores are stored", func() {
			now := time.Now()
			ok1, _ := m.PutOrphanScore(ctx, &model.OrphanScore{OrphanID: "o1", Fingerprint: "fp1", UserID: "u1", TimeInserted: now})
			ok2, _ := m.PutOrphanScore(ctx, &model.OrphanScore{OrphanID: "o1", Fingerprint: "fp1", UserID: "u1", TimeInserted: now})
			_, _ = m.PutOrphanScore(ctx, &model.OrphanScore{OrphanID: "o2", Fingerprint: "fp2", UserID: "u2", TimeInserted: now.Add(time.Second)})

			Convey("Then duplicates are reported and filters apply", func() {
				So(ok1, ShouldBeTrue)
				So(ok2, ShouldBeFalse)
				fp1, _ := m.OrphanScoresFor(ctx, "fp1")
				So(len(fp1), ShouldEqual, 1)
				byUser, _ := m.ListOrphanScores(ctx, repository.OrphanFilter{UserID: "u2"})
				So(len(byUser), ShouldEqual, 1)
				all, _ := m.ListOrphanScores(ctx, repository.OrphanFilter{})
				So(len(all), ShouldEqual, 2)
				So(all[0].OrphanID, ShouldEqual, "o1")
			})

			Convey("Then deleting removes them", func() {
				So(m.DeleteOrphanScore(ctx, "o1"), ShouldBeNil)
				all, _ := m.ListOrphanScores(ctx, repository.OrphanFilter{})
				So(len(all), ShouldEqual, 1)
			})
		})
	})
}
