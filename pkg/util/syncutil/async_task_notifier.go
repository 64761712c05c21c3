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

import "context"

// AsyncTaskNotifier 协调一个后台任务的取消与完成：
// 拥有方 Cancel 后等待任务 Finish，任务侧通过 Context 感知取消。
type AsyncTaskNotifier[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	future *Future[T]
}

func NewAsyncTaskNotifier[T any]() *AsyncTaskNotifier[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncTaskNotifier[T]{
		ctx:    ctx,
		cancel: cancel,
		future: NewFuture[T](),
	}
}

// Context 返回任务侧用于感知取消的上下文。
func (n *AsyncTaskNotifier[T]) Context() context.Context {
	return n.ctx
}

// Cancel 通知任务退出，不等待。
func (n *AsyncTaskNotifier[T]) Cancel() {
	n.cancel()
}

// Finish 由任务侧在退出前调用，标记任务完成并携带结果。
func (n *AsyncTaskNotifier[T]) Finish(result T) {
	n.future.Set(result)
}

// FinishChan 返回任务完成的信号通道。
func (n *AsyncTaskNotifier[T]) FinishChan() <-chan struct{} {
	return n.future.Done()
}

// BlockUntilFinish 阻塞直到任务完成。
func (n *AsyncTaskNotifier[T]) BlockUntilFinish() {
	<-n.future.Done()
}

// BlockAndGetResult 阻塞直到任务完成并返回结果。
func (n *AsyncTaskNotifier[T]) BlockAndGetResult() T {
	return n.future.Get()
}
