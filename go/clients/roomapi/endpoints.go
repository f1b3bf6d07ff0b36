package roomapi

import "fmt"

const apiPrefix = "/api/v1"

func roomPath(code string) string {
	return fmt.Sprintf("%s/rooms/%s", apiPrefix, code)
}

func playersPath(code string) string {
	return roomPath(code) + "/players"
}

func playerPath(code, playerID string) string {
	return fmt.Sprintf("%s/players/%s", roomPath(code), playerID)
}

func nicknamePath(code, playerID string) string {
	return playerPath(code, playerID) + "/nickname"
}

func gameStartPath(code string) string  { return roomPath(code) + "/game/start" }
func gameResetPath(code string) string  { return roomPath(code) + "/game/reset" }
func roundStartPath(code string) string { return roomPath(code) + "/rounds/start" }
func roundPath(code string) string      { return roomPath(code) + "/rounds/current" }

func leaderTransferPath(code string) string { return roomPath(code) + "/leaders/transfer" }
func leaderReadyPath(code string) string    { return roomPath(code) + "/leaders/ready" }
func hostagesPath(code string) string       { return roomPath(code) + "/hostages/select" }

func voteStartPath(code string) string { return roomPath(code) + "/votes/start" }
func votePath(code string) string      { return roomPath(code) + "/votes/current" }
func voteCastPath(code, voteID string) string {
	return fmt.Sprintf("%s/votes/%s/cast", roomPath(code), voteID)
}
