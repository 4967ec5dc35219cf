package cmd

import (
	"github.com/babelcloud/holocast/config"
	"github.com/babelcloud/holocast/internal/compositor"
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/session"
	"github.com/pkg/errors"
)

// openNamespace returns the shared-surface namespace for backend. Separate
// processes can only meet in shm.
func openNamespace(backend string) (gpu.SharedNamespace, error) {
	switch backend {
	case "memory":
		return gpu.NewMemoryNamespace(), nil
	case "shm":
		ns, err := gpu.NewShmNamespace(config.GetShmDir())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open shared memory namespace")
		}
		return ns, nil
	}
	return nil, errors.Errorf("unknown surface backend %q (memory or shm)", backend)
}

func producerConfig(dev *gpu.Device) session.ProducerConfig {
	return session.ProducerConfig{
		Device:         dev,
		AppType:        config.GetAppType(),
		MinDelay:       config.GetMinDelay(),
		Smoothing:      config.GetSmoothing(),
		FeedbackBuffer: config.GetFeedbackBuffer(),
	}
}

func consumerConfig(dev *gpu.Device) session.ConsumerConfig {
	return session.ConsumerConfig{
		Device:         dev,
		AppType:        config.GetAppType(),
		RequestTimeout: config.GetRequestTimeout(),
		Presenter: compositor.Config{
			Distance:     config.GetQuadDistance(),
			FadeDuration: config.GetFadeDuration(),
			AllowVPRT:    config.GetVPRT(),
		},
	}
}
