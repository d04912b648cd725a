package service_test

import (
	"context"
	"testing"
	"time"

	service "github.com/okian/puzzlerank/internal/app"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithSnapshotInterval(50*time.Millisecond),
			service.WithSubscriberBuffer(32),
			service.WithDefaultTopN(50),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a service that was stopped and restarted", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(service.WithSnapshotInterval(20 * time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)
		svc.Stop()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Then the snapshot loop should still broadcast deltas", func() {
			So(svc.OpenWindow(ctx, "daily", time.Now(), time.Now().Add(time.Hour)), ShouldBeNil)

			sub, err := svc.Subscribe(ctx, "daily", "")
			So(err, ShouldBeNil)
			defer svc.Unsubscribe(sub)

			// Drain the initial snapshot.
			select {
			case <-sub.Frames():
			case <-time.After(3 * time.Second):
				So("timed out", ShouldBeEmpty)
			}

			So(svc.SubmitScore(ctx, model.ScoreEvent{
				EventID: "restart-e1", PlayerID: "alice", WindowID: "daily",
				Kind: model.KindDelta, Points: 100, TS: time.Now(),
			}), ShouldBeNil)

			select {
			case frame := <-sub.Frames():
				So(string(frame), ShouldContainSubstring, `"type":"delta"`)
			case <-time.After(3 * time.Second):
				So("timed out", ShouldBeEmpty)
			}
		})
	})
}

func TestService_WindowLifecycle(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(service.WithSnapshotInterval(20 * time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When opening a window", func() {
			err := svc.OpenWindow(ctx, "daily", time.Now(), time.Now().Add(time.Hour))
			So(err, ShouldBeNil)

			Convey("Then it should appear in the window list", func() {
				windows := svc.Windows(ctx)
				So(windows, ShouldHaveLength, 1)
				So(windows[0].ID, ShouldEqual, "daily")
			})

			Convey("And opening it again should fail", func() {
				So(svc.OpenWindow(ctx, "daily", time.Now(), time.Now().Add(time.Hour)), ShouldNotBeNil)
			})

			Convey("And closing it should reject later submissions", func() {
				So(svc.CloseWindow(ctx, "daily"), ShouldBeNil)
				err := svc.SubmitScore(ctx, model.ScoreEvent{
					EventID:  "e-after-close",
					PlayerID: "alice",
					WindowID: "daily",
					Kind:     model.KindDelta,
					Points:   10,
					TS:       time.Now(),
				})
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When submitting to an unknown window", func() {
			err := svc.SubmitScore(ctx, model.ScoreEvent{
				EventID:  "e-unknown",
				PlayerID: "alice",
				WindowID: "nope",
				Kind:     model.KindDelta,
				Points:   10,
				TS:       time.Now(),
			})

			Convey("Then it should be rejected synchronously", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestService_SubmitAndQuery(t *testing.T) {
	Convey("Given a started service with an open window", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(service.WithSnapshotInterval(20 * time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.OpenWindow(ctx, "daily", time.Now(), time.Now().Add(time.Hour)), ShouldBeNil)

		Convey("When submitting score events", func() {
			base := time.Now()
			events := []model.ScoreEvent{
				{EventID: "e1", PlayerID: "alice", WindowID: "daily", Kind: model.KindDelta, Points: 100, TS: base},
				{EventID: "e2", PlayerID: "bob", WindowID: "daily", Kind: model.KindDelta, Points: 250, TS: base.Add(time.Millisecond)},
				{EventID: "e3", PlayerID: "carol", WindowID: "daily", Kind: model.KindDelta, Points: 50, TS: base.Add(2 * time.Millisecond)},
			}
			for _, ev := range events {
				So(svc.SubmitScore(ctx, ev), ShouldBeNil)
			}

			Convey("Then the leaderboard should converge", func() {
				So(func() []string {
					deadline := time.Now().Add(3 * time.Second)
					for time.Now().Before(deadline) {
						entries, err := svc.TopN(ctx, "daily", 10)
						if err == nil && len(entries) == 3 {
							out := make([]string, len(entries))
							for i, e := range entries {
								out[i] = e.PlayerID
							}
							return out
						}
						time.Sleep(10 * time.Millisecond)
					}
					return nil
				}(), ShouldResemble, []string{"bob", "alice", "carol"})
			})

			Convey("And a duplicate submission should be rejected", func() {
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) {
					if entries, err := svc.TopN(ctx, "daily", 10); err == nil && len(entries) == 3 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}

				err := svc.SubmitScore(ctx, model.ScoreEvent{
					EventID: "e1", PlayerID: "alice", WindowID: "daily",
					Kind: model.KindDelta, Points: 100, TS: time.Now(),
				})
				So(err, ShouldWrap, service.ErrDuplicateEvent)

				entries, qerr := svc.TopN(ctx, "daily", 10)
				So(qerr, ShouldBeNil)
				for _, e := range entries {
					if e.PlayerID == "alice" {
						So(e.Score, ShouldEqual, 100)
					}
				}
			})

			Convey("And rank and around queries should work once applied", func() {
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) {
					if entries, err := svc.TopN(ctx, "daily", 10); err == nil && len(entries) == 3 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}

				entry, err := svc.Rank(ctx, "daily", "alice")
				So(err, ShouldBeNil)
				So(entry.Rank, ShouldEqual, 2)
				So(entry.Score, ShouldEqual, 100)

				neighborhood, err := svc.Around(ctx, "daily", "alice", 1)
				So(err, ShouldBeNil)
				So(neighborhood, ShouldHaveLength, 3)
				So(neighborhood[0].PlayerID, ShouldEqual, "bob")
				So(neighborhood[2].PlayerID, ShouldEqual, "carol")
			})
		})
	})
}

func TestService_Subscribe(t *testing.T) {
	Convey("Given a started service with ranked players", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(service.WithSnapshotInterval(20 * time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.OpenWindow(ctx, "daily", time.Now(), time.Now().Add(time.Hour)), ShouldBeNil)

		So(svc.SubmitScore(ctx, model.ScoreEvent{
			EventID: "e1", PlayerID: "alice", WindowID: "daily",
			Kind: model.KindDelta, Points: 100, TS: time.Now(),
		}), ShouldBeNil)

		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if entries, err := svc.TopN(ctx, "daily", 10); err == nil && len(entries) == 1 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		Convey("When subscribing with the default filter", func() {
			sub, err := svc.Subscribe(ctx, "daily", "")
			So(err, ShouldBeNil)
			defer svc.Unsubscribe(sub)

			Convey("Then the initial snapshot frame should arrive", func() {
				select {
				case frame := <-sub.Frames():
					So(string(frame), ShouldContainSubstring, `"type":"snapshot"`)
					So(string(frame), ShouldContainSubstring, "alice")
				case <-time.After(3 * time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})

			Convey("And a quiet window should produce no frames at all", func() {
				// Drain the snapshot first.
				select {
				case <-sub.Frames():
				case <-time.After(3 * time.Second):
					So("timed out", ShouldBeEmpty)
				}

				// Many snapshot intervals pass with no submissions.
				select {
				case frame := <-sub.Frames():
					So(string(frame), ShouldBeEmpty)
				case <-time.After(200 * time.Millisecond):
				}
			})

			Convey("And a later submission should produce a delta frame", func() {
				// Drain the snapshot first.
				select {
				case <-sub.Frames():
				case <-time.After(3 * time.Second):
					So("timed out", ShouldBeEmpty)
				}

				So(svc.SubmitScore(ctx, model.ScoreEvent{
					EventID: "e2", PlayerID: "bob", WindowID: "daily",
					Kind: model.KindDelta, Points: 250, TS: time.Now(),
				}), ShouldBeNil)

				select {
				case frame := <-sub.Frames():
					So(string(frame), ShouldContainSubstring, `"type":"delta"`)
					So(string(frame), ShouldContainSubstring, "bob")
				case <-time.After(3 * time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})
		})

		Convey("When subscribing with an invalid filter", func() {
			_, err := svc.Subscribe(ctx, "daily", "sideways:5")
			So(err, ShouldNotBeNil)
		})

		Convey("When subscribing to an unknown window", func() {
			_, err := svc.Subscribe(ctx, "nope", "")
			So(err, ShouldNotBeNil)
		})
	})
}
