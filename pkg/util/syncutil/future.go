// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package syncutil

// Future 表示一个在未来某个时刻被设置一次的值。
// Set 只能调用一次，Get 在值就绪前阻塞。
type Future[T any] struct {
	ch    chan struct{}
	value T
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

// Set 设置值并唤醒所有等待者。
func (f *Future[T]) Set(value T) {
	f.value = value
	close(f.ch)
}

// Get 阻塞等待并返回值。
func (f *Future[T]) Get() T {
	<-f.ch
	return f.value
}

// Done 返回值就绪的信号通道。
func (f *Future[T]) Done() <-chan struct{} {
	return f.ch
}

// Ready 返回值是否已经就绪。
func (f *Future[T]) Ready() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}
