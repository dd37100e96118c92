package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publisher struct {
	client mqtt.Client
	cfg    mqttData
	name   string
}

// newPublisher connects to the configured broker. It returns nil when no
// broker is configured; a failed connection is logged and leaves a
// publisher that never publishes.
func newPublisher(cfg configData) *publisher {
	if cfg.MQTT.Host == "" {
		return nil
	}
	mqOpts := mqtt.NewClientOptions()
	mqOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	mqOpts.SetClientID(cfg.Name)

	client := mqtt.NewClient(mqOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("MQTT: Unable to connect to %s:%d: %v", cfg.MQTT.Host, cfg.MQTT.Port, token.Error())
	}
	return &publisher{client: client, cfg: cfg.MQTT, name: cfg.Name}
}

func (p *publisher) connected() bool {
	return p != nil && p.client != nil && p.client.IsConnected()
}

func (p *publisher) registerUID(addr uint16) string {
	return fmt.Sprintf("%s_register_%d", strings.ReplaceAll(strings.ToLower(p.name), " ", "_"), addr)
}

func (p *publisher) stateTopic(addr uint16) string {
	return fmt.Sprintf("%s/%s/register/%d/state", p.cfg.TopicPrefix, p.name, addr)
}

// publish sends one retained message per register and returns how many were
// accepted by the broker.
func (p *publisher) publish(start uint16, values []uint16) int {
	if !p.connected() {
		return 0
	}
	sent := 0
	for i, v := range values {
		addr := start + uint16(i)
		token := p.client.Publish(p.stateTopic(addr), p.cfg.QoS, true, strconv.Itoa(int(v)))
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("MQTT: publishing register %d failed: %v", addr, err)
			continue
		}
		sent++
	}
	return sent
}

// registerHA advertises every register in the read range to Home Assistant.
func (p *publisher) registerHA(start, count uint16) {
	if !p.connected() {
		return
	}
	type hassAdvert struct {
		Name       string `json:"name"`
		UniqueID   string `json:"unique_id"`
		Icon       string `json:"icon,omitempty"`
		StateTopic string `json:"state_topic"`
	}
	for i := uint16(0); i < count; i++ {
		addr := start + i
		haData := hassAdvert{
			Name:       fmt.Sprintf("%s register %d", p.name, addr),
			UniqueID:   p.registerUID(addr),
			Icon:       "mdi:counter",
			StateTopic: p.stateTopic(addr),
		}
		jsonBytes, err := json.Marshal(haData)
		if err != nil {
			log.Printf("MQTT: Unable to encode HA json: %s", err)
			continue
		}
		p.client.Publish(fmt.Sprintf("%s/sensor/%s/%d/config", p.cfg.HassdiscoveryPrefix, p.name, addr),
			p.cfg.QoS, true, jsonBytes)
	}
}

func (p *publisher) Close() {
	if p.connected() {
		p.client.Disconnect(250)
	}
}
