package db

import "gorm.io/gorm"

// User 定义了用户模型，移动端通过邮箱+密码注册登录。
type User struct {
	gorm.Model
	Email    string `gorm:"size:255;uniqueIndex;not null"`
	Password string `gorm:"not null"`
}
