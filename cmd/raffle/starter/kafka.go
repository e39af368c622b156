package starter

import (
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/monitor"
)

func startKafkaProducer(cfg RaffleConfig, raffleAddr string) error {
	if *cfg.KafkaBootstrap == "" || *cfg.KafkaTopic == "" {
		glog.Warning("not starting Kafka producer as producer config values aren't present")
		return nil
	}

	return monitor.InitKafkaProducer(
		*cfg.KafkaBootstrap,
		*cfg.KafkaUsername,
		*cfg.KafkaPassword,
		*cfg.KafkaTopic,
		raffleAddr,
	)
}
