package kafka

import "github.com/ThreeDotsLabs/watermill"

func watermillStdLogger() watermill.LoggerAdapter {
	return watermill.NewStdLogger(false, false)
}
