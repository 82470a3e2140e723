package provider

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"video-relay/constant"
	"video-relay/dto"
	"video-relay/pkg/metrics"
)

type MockCategory struct {
	Name     string
	Keywords []string
	VideoURL string
}

// MockCategories are checked in order; the first category with a keyword
// contained in the lowercased prompt wins.
var MockCategories = []MockCategory{
	{
		Name:     "cat",
		Keywords: []string{"cat", "kitten", "pet"},
		VideoURL: "https://sample-videos.com/zip/10/mp4/480/SampleVideo_480x270_1mb.mp4",
	},
	{
		Name:     "ocean",
		Keywords: []string{"ocean", "wave", "water", "sea"},
		VideoURL: "https://www.learningcontainer.com/wp-content/uploads/2020/05/sample-mp4-file.mp4",
	},
	{
		Name:     "nature",
		Keywords: []string{"nature", "forest", "tree", "landscape"},
		VideoURL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ForBiggerEscapes.mp4",
	},
	{
		Name:     "city",
		Keywords: []string{"city", "urban", "building", "street"},
		VideoURL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ForBiggerJoyrides.mp4",
	},
}

var DefaultMockCategory = MockCategory{
	Name:     "default",
	VideoURL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
}

// SelectMockCategory picks the placeholder category for prompt.
func SelectMockCategory(prompt string) MockCategory {
	lower := strings.ToLower(prompt)
	for _, category := range MockCategories {
		for _, keyword := range category.Keywords {
			if strings.Contains(lower, keyword) {
				return category
			}
		}
	}
	return DefaultMockCategory
}

type MockConfig struct {
	StageDelay time.Duration
}

func DefaultMockConfig() MockConfig {
	return MockConfig{StageDelay: 2 * time.Second}
}

// Mock simulates a two-stage generation and returns a sample video chosen by
// keyword. It needs no credentials and only fails when ctx is cancelled.
type Mock struct {
	base
	cfg MockConfig
}

func NewMock(cfg MockConfig, tracker ProgressTracker, m *metrics.Collector) *Mock {
	return &Mock{
		base: base{name: constant.ProviderMock, tracker: tracker, metrics: m},
		cfg:  cfg,
	}
}

func (m *Mock) Name() constant.ProviderName { return m.name }

func (m *Mock) Configured() bool { return true }

func (m *Mock) Attempt(ctx context.Context, generationID uuid.UUID, req dto.VideoRequest) (string, bool) {
	return m.run(ctx, generationID, true, func(ctx context.Context) (string, error) {
		for _, progress := range []int{60, 80} {
			m.progress(ctx, generationID, progress)
			if err := sleep(ctx, m.cfg.StageDelay); err != nil {
				return "", err
			}
		}
		return SelectMockCategory(req.Prompt).VideoURL, nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
