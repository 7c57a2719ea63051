// internal/app/recorder.go
package app

// Recorder receives operational counters from the services. The prometheus
// implementation lives in infra/metrics.
type Recorder interface {
	CacheResult(strategy, source string)
	SyncReplay(outcome string)
	PendingReports(n int)
	PushPresented(pushType string)
	NotificationClick(action string)
	ReportSubmitted(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) CacheResult(string, string) {}
func (nopRecorder) SyncReplay(string)          {}
func (nopRecorder) PendingReports(int)         {}
func (nopRecorder) PushPresented(string)       {}
func (nopRecorder) NotificationClick(string)   {}
func (nopRecorder) ReportSubmitted(string)     {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
