package main

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

const devPath = "/sys/bus/usb/devices"

var (
	usbSerialRe    = regexp.MustCompile(`(?i)usb.*serial|serial.*usb`)
	getPortsList   = enumerator.GetDetailedPortsList
	usbDevicesRoot = devPath
)

type serialPortInfo struct {
	Name    string
	Product string
	VID     string
	PID     string
	USB     bool
}

func (p serialPortInfo) String() string {
	s := p.Name
	if p.USB && p.VID != "" {
		s += " [" + p.VID + ":" + p.PID + "]"
	}
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

// listSerialPorts asks the OS enumerator first and falls back to walking
// sysfs for USB serial adapters.
func listSerialPorts() []serialPortInfo {
	var found []serialPortInfo
	ports, err := getPortsList()
	if err != nil {
		log.Printf("Ports: enumeration failed: %v", err)
	}
	for _, p := range ports {
		found = append(found, serialPortInfo{Name: p.Name, Product: p.Product, VID: p.VID, PID: p.PID, USB: p.IsUSB})
	}
	if len(found) > 0 {
		return found
	}
	return findUSBSerialDevices(usbDevicesRoot)
}

func findUSBSerialDevices(root string) []serialPortInfo {
	hubs, err := filepath.Glob(filepath.Join(root, "usb*"))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var found []serialPortInfo
	for _, hub := range hubs {
		products, err := filepath.Glob(filepath.Join(hub, "*", "product"))
		if err != nil || len(products) == 0 {
			continue
		}
		for _, prodFn := range products {
			product := readFile(prodFn)
			if !usbSerialRe.MatchString(product) {
				continue
			}
			tty := findTTY(filepath.Dir(prodFn))
			if tty == "" || seen[tty] {
				continue
			}
			seen[tty] = true
			found = append(found, serialPortInfo{Name: filepath.Join("/dev", tty), Product: product, USB: true})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found
}

// findTTY handles both layouts: usb-serial drivers put ttyUSBn directly under
// the interface, cdc-acm nests ttyACMn under a tty directory.
func findTTY(devDir string) string {
	for _, pattern := range []string{
		filepath.Join(devDir, "*:*", "tty", "tty*"),
		filepath.Join(devDir, "*:*", "tty*"),
	} {
		ttys, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, tty := range ttys {
			if name := filepath.Base(tty); name != "tty" {
				return name
			}
		}
	}
	return ""
}

func portNames(ports []serialPortInfo) string {
	if len(ports) == 0 {
		return "none"
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func readFile(fn string) (rStr string) {
	fh, err := os.Open(fn)
	if err != nil {
		return
	}
	defer fh.Close()
	rBytes, err := ioutil.ReadAll(fh)
	if err != nil {
		return
	}
	rStr = strings.TrimSuffix(string(rBytes), "\n")
	return
}
