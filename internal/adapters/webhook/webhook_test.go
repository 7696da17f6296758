package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/scorepipe/internal/adapters/webhook"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestHTTPEmitter(t *testing.T) {
	Convey("Given a receiving server", t, func() {
		var (
			gotType string
			gotBody map[string]any
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotType = r.Header.Get("X-Event-Type")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		e := webhook.NewHTTPEmitter(srv.URL)
		ev := webhook.NewEvent(webhook.EventGoalsAchieved, webhook.GoalsAchievedContent{
			UserID: "u1",
			Game:   "iidx",
			Goals:  []model.GoalImportInfo{{GoalID: "g1"}},
		})

		Convey("When an event is emitted", func() {
			err := e.Emit(context.Background(), ev)

			Convey("Then it is posted as JSON", func() {
				So(err, ShouldBeNil)
				So(gotType, ShouldEqual, webhook.EventGoalsAchieved)
				So(gotBody["type"], ShouldEqual, webhook.EventGoalsAchieved)
				So(gotBody["id"], ShouldEqual, ev.ID)
				content, ok := gotBody["content"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(content["userID"], ShouldEqual, "u1")
				So(content["game"], ShouldEqual, "iidx")
			})
		})
	})

	Convey("Given a server that rejects events", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		err := webhook.NewHTTPEmitter(srv.URL).Emit(context.Background(), webhook.NewEvent("x", nil))

		Convey("Then the error is ErrRejected", func() {
			So(errors.Is(err, webhook.ErrRejected), ShouldBeTrue)
		})
	})

	Convey("Given a server slower than the timeout", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		e := webhook.NewHTTPEmitter(srv.URL, webhook.WithTimeout(20*time.Millisecond))
		err := e.Emit(context.Background(), webhook.NewEvent("x", nil))

		Convey("Then delivery fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRecorder(t *testing.T) {
	Convey("Given a recorder", t, func() {
		r := &webhook.Recorder{}
		_ = r.Emit(context.Background(), webhook.NewEvent("a", nil))
		_ = r.Emit(context.Background(), webhook.NewEvent("b", nil))

		Convey("Then events are kept in order", func() {
			evs := r.Events()
			So(len(evs), ShouldEqual, 2)
			So(evs[0].Type, ShouldEqual, "a")
			So(evs[1].Type, ShouldEqual, "b")
			So(evs[0].ID, ShouldNotEqual, evs[1].ID)
		})
	})
}
