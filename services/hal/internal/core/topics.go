package core

import (
	"irlearn-go/bus"
	"irlearn-go/types"
)

func topicConfigHAL() bus.Topic { return bus.T("config", "hal") }
func topicHALState() bus.Topic  { return bus.T("hal", "state") }

// hal/cap/<domain>/<kind>/<name>/...
func capBase(a CapAddr) bus.Topic { return bus.T("hal", "cap", a.Domain, string(a.Kind), a.Name) }

func capInfo(a CapAddr) bus.Topic   { return capBase(a).Append("info") }
func capStatus(a CapAddr) bus.Topic { return capBase(a).Append("status") }
func capValue(a CapAddr) bus.Topic  { return capBase(a).Append("value") }
func capEvent(a CapAddr, tag string) bus.Topic {
	return capBase(a).Append("event", tag)
}

// CtrlTopic is hal/cap/<domain>/<kind>/<name>/control/<verb>.
func CtrlTopic(domain string, kind types.Kind, name, verb string) bus.Topic {
	return capBase(CapAddr{Domain: domain, Kind: kind, Name: name}).Append("control", verb)
}

// EventTopic is hal/cap/<domain>/<kind>/<name>/event/<tag>; tag may be "+".
func EventTopic(domain string, kind types.Kind, name, tag string) bus.Topic {
	return capEvent(CapAddr{Domain: domain, Kind: kind, Name: name}, tag)
}

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic {
	return bus.T("hal", "cap", "+", "+", "+", "control", "+")
}
