package app

import "github.com/peersync/watchparty/internal/domain"

// Store layout under the room document:
//
//	rooms/<id>                      room document
//	rooms/<id>/webrtc/offers/<to>   at most one pending offer per target
//	rooms/<id>/webrtc/answers/<to>  at most one pending answer per target
//	rooms/<id>/webrtc/ice/<to>/<k>  candidate inbox, drained by the target
func roomPath(id domain.RoomID) string {
	return "rooms/" + string(id)
}

func participantsPath(id domain.RoomID) string {
	return roomPath(id) + "/participants"
}

func messagesPath(id domain.RoomID) string {
	return roomPath(id) + "/messages"
}

func webrtcPath(id domain.RoomID) string {
	return roomPath(id) + "/webrtc"
}

func offerPath(id domain.RoomID, target domain.Identity) string {
	return webrtcPath(id) + "/offers/" + string(target)
}

func answerPath(id domain.RoomID, target domain.Identity) string {
	return webrtcPath(id) + "/answers/" + string(target)
}

func iceInboxPath(id domain.RoomID, target domain.Identity) string {
	return webrtcPath(id) + "/ice/" + string(target)
}

func icePath(id domain.RoomID, target domain.Identity, key string) string {
	return iceInboxPath(id, target) + "/" + key
}
