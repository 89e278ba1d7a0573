package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	kafka "github.com/segmentio/kafka-go"

	"github.com/mqy/wabiz/bus"
	"github.com/mqy/wabiz/webhook"
)

// The replay tool mocks the Cloud API: it posts signed webhook batches to a
// running server, or queues them on the envelope topic.

var (
	flagURL           = flag.String("url", "http://127.0.0.1:8000/webhook", "webhook url")
	flagAppSecret     = flag.String("app-secret", "", "app secret to sign bodies, env WHATSAPP_APP_SECRET")
	flagPhoneNumberID = flag.String("phone-number-id", "", "business phone number id, env WHATSAPP_PHONE_NUMBER_ID")
	flagFrom          = flag.String("from", "15550001111", "sender wa_id of generated messages")
	flagFile          = flag.String("file", "", "post this body instead of generated batches")
	flagCount         = flag.Int("count", 3, "number of generated batches")
	flagInterval      = flag.Duration("interval", time.Second, "interval between batches")

	flagKafkaBrokers       = flag.String("kafka-brokers", "", "comma separated kafka brokers, write to kafka instead of http when set")
	flagKafkaEnvelopeTopic = flag.String("kafka-envelope-topic", "wabiz-envelopes", "kafka topic of queued webhook bodies")
)

func main() {
	_ = godotenv.Load(".env")
	flag.Parse()

	if *flagAppSecret == "" {
		*flagAppSecret = os.Getenv("WHATSAPP_APP_SECRET")
	}
	if *flagPhoneNumberID == "" {
		*flagPhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}
	if *flagPhoneNumberID == "" {
		panic("--phone-number-id is required.")
	}

	send := postBody
	if *flagKafkaBrokers != "" {
		// kafka-topics.sh --bootstrap-server localhost:9092 --topic wabiz-envelopes --create
		w := bus.NewWriter(strings.Split(*flagKafkaBrokers, ","), *flagKafkaEnvelopeTopic)
		defer w.Close()
		send = func(body []byte) error {
			return w.WriteMessages(context.Background(), kafka.Message{Key: []byte(*flagFrom), Value: body})
		}
	}

	if *flagFile != "" {
		body, err := ioutil.ReadFile(*flagFile)
		if err != nil {
			panic(err)
		}
		if err := send(body); err != nil {
			panic(err)
		}
		return
	}

	for i := 0; i < *flagCount; i++ {
		if i > 0 {
			time.Sleep(*flagInterval)
		}
		id := fmt.Sprintf("wamid.replay.%d.%d", time.Now().Unix(), i)
		for _, body := range [][]byte{messageBatch(id, i), readBatch(id)} {
			if err := send(body); err != nil {
				panic(err)
			}
		}
		fmt.Printf("batch %d sent, message id: %s\n", i, id)
	}
}

func postBody(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, *flagURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *flagAppSecret != "" {
		req.Header.Set("X-Hub-Signature-256", webhook.Sign(*flagAppSecret, body))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := ioutil.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return nil
}

func envelope(value map[string]interface{}) []byte {
	value["messaging_product"] = "whatsapp"
	value["metadata"] = map[string]interface{}{"phone_number_id": *flagPhoneNumberID}
	body, err := json.Marshal(map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []interface{}{map[string]interface{}{
			"id":      "0",
			"changes": []interface{}{map[string]interface{}{"field": "messages", "value": value}},
		}},
	})
	if err != nil {
		panic(err)
	}
	return body
}

func messageBatch(id string, i int) []byte {
	return envelope(map[string]interface{}{
		"contacts": []interface{}{map[string]interface{}{
			"wa_id":   *flagFrom,
			"profile": map[string]interface{}{"name": "Replay"},
		}},
		"messages": []interface{}{map[string]interface{}{
			"from":      *flagFrom,
			"id":        id,
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
			"type":      "text",
			"text":      map[string]interface{}{"body": fmt.Sprintf("hello %d", i)},
		}},
	})
}

func readBatch(id string) []byte {
	return envelope(map[string]interface{}{
		"statuses": []interface{}{map[string]interface{}{
			"id":           id,
			"status":       "read",
			"timestamp":    fmt.Sprintf("%d", time.Now().Unix()),
			"recipient_id": *flagFrom,
		}},
	})
}
