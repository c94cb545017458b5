package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/printflowhq/printshop_backend/config"
)

type syncPubSubPayload struct {
	RunId  uint   `json:"run_id"`
	ShopId string `json:"shop_id"`
}

func publishRun(ctx context.Context, runId uint, shopId string) error {
	topicName := strings.TrimSpace(os.Getenv("SYNC_TOPIC"))
	if topicName == "" {
		topicName = "printshop-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	data, _ := json.Marshal(syncPubSubPayload{RunId: runId, ShopId: shopId})
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}
