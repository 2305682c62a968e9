package entity

type Referral struct {
	Base

	ReferrerUID string `gorm:"index"`
	NewUserUID  string `gorm:"uniqueIndex"`
}

type ReferralCodeUsage struct {
	Base

	Code    string `gorm:"uniqueIndex"`
	UserUID string
}
