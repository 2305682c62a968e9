package model

type ApplyReferralCodeRequest struct {
	UID  string `json:"uid"`
	Code string `json:"code"`
}

type ApplyReferralCodeResponse struct {
	NewEntryCount int64 `json:"new_entry_count"`
}

type ReferUserRequest struct {
	ReferrerUID string `json:"referrer_uid"`
	NewUserUID  string `json:"new_user_uid"`
}

type ReferUserResponse struct{}
