package common

import "fmt"

func RedisKeyPot(periodKey string) string {
	return fmt.Sprintf("pot:%s", periodKey)
}

func RedisKeyDropLock(periodKey string) string {
	return fmt.Sprintf("droplock:%s", periodKey)
}
