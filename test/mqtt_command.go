package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// buttonConfig is the part of a discovery payload worth printing
type buttonConfig struct {
	Name         string `json:"name"`
	PayloadPress string `json:"payload_press"`
	UniqueID     string `json:"unique_id"`
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	username := flag.String("username", "mqtt", "MQTT username")
	password := flag.String("password", "", "MQTT password")
	namespace := flag.String("namespace", "virtualbox", "topic namespace of the bridge")
	prefix := flag.String("prefix", "homeassistant", "discovery prefix")
	mode := flag.String("mode", "watch", "mode: send, watch, discovery")
	command := flag.String("command", "", `command for send mode, e.g. "start demo"`)
	flag.Parse()

	opts := paho.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("vbox-mqtt-test-%d", time.Now().Unix()))
	opts.SetUsername(*username)
	opts.SetPassword(*password)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		fmt.Printf("connection lost: %v\n", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("failed to connect to MQTT broker: %v\n", token.Error())
		os.Exit(1)
	}
	fmt.Printf("connected to MQTT broker: %s\n", *broker)

	switch *mode {
	case "send":
		sendCommand(client, *namespace, *command)
	case "watch":
		watch(client, *namespace+"/+/status", printStatus)
	case "discovery":
		watch(client, *prefix+"/button/+/config", printButton)
	default:
		fmt.Println("unknown mode, use send, watch or discovery")
		os.Exit(1)
	}
}

// sendCommand publishes one "<action> <vm>" payload, exactly what a button press sends
func sendCommand(client paho.Client, namespace, command string) {
	if len(strings.SplitN(command, " ", 2)) < 2 {
		fmt.Println(`send mode needs -command "<action> <vm name>"`)
		client.Disconnect(250)
		os.Exit(1)
	}

	topic := namespace + "/command"
	token := client.Publish(topic, 0, false, command)
	token.Wait()

	if token.Error() != nil {
		fmt.Printf("failed to publish command: %v\n", token.Error())
	} else {
		fmt.Printf("sent %q to %s\n", command, topic)
	}
	client.Disconnect(250)
}

func watch(client paho.Client, topic string, handler paho.MessageHandler) {
	if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
		fmt.Printf("failed to subscribe to %s: %v\n", topic, token.Error())
		os.Exit(1)
	}
	fmt.Printf("watching %s, Ctrl-C to stop\n", topic)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	client.Disconnect(250)
}

func printStatus(_ paho.Client, msg paho.Message) {
	timestamp := time.Now().Format("15:04:05")
	fmt.Printf("[%s] %s = %s (retained=%v)\n", timestamp, msg.Topic(), msg.Payload(), msg.Retained())
}

func printButton(_ paho.Client, msg paho.Message) {
	var button buttonConfig
	if err := json.Unmarshal(msg.Payload(), &button); err != nil {
		fmt.Printf("%s: invalid JSON: %v\n", msg.Topic(), err)
		return
	}
	fmt.Printf("%-40s %-24s press=%q\n", button.UniqueID, button.Name, button.PayloadPress)
}
